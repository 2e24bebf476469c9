package voicechat

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-realtime/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	droppedFrames, _      = meter.Int64Counter("voicechat.audio.frames_dropped", metric.WithDescription("Inbound audio frames dropped as malformed"))
	receivedSegments, _   = meter.Int64Counter("voicechat.audio.segments_received", metric.WithDescription("Inbound audio segments queued for playback"))
	sentUtterances, _     = meter.Int64Counter("voicechat.audio.utterances_sent", metric.WithDescription("Captured utterances sent to the realtime service"))
	scheduledSegments, _  = meter.Int64Counter("voicechat.playback.segments_scheduled", metric.WithDescription("Audio segments handed to the output device"))
	connectionAttempts, _ = meter.Int64Counter("voicechat.session.connect_attempts", metric.WithDescription("Connect attempts started"))
)
