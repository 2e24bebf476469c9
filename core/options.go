package voicechat

import (
	"context"

	"github.com/koscakluka/ema-realtime/core/debuglog"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/playback"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/vad"
)

type Option func(*Session)

// TokenSource issues the short-lived credential used to open the channel.
type TokenSource interface {
	FetchToken(ctx context.Context) (string, error)
}

// Conn is an open realtime channel.
type Conn interface {
	Send(msgs ...any) error
	Run(handler realtime.Handler) error
	Close() error
}

type Dialer func(ctx context.Context, config realtime.DialConfig) (Conn, error)

// AudioOutput renders scheduled reply audio and is released on disconnect.
type AudioOutput interface {
	playback.Output
	Close() error
}

type OutputOpener func(ctx context.Context) (AudioOutput, error)

type MicrophoneOpener func(ctx context.Context) (vad.Microphone, error)

// DetectorFactory creates a fresh detector every time the microphone is
// armed. Detectors implementing io.Closer are closed when disarmed.
type DetectorFactory func() (vad.Detector, error)

// WithTokenSource replaces the token client built from the bootstrap backend
// URL.
func WithTokenSource(source TokenSource) Option {
	return func(s *Session) { s.tokenSource = source }
}

func WithDialer(dialer Dialer) Option {
	return func(s *Session) { s.dial = dialer }
}

func WithAudioOutput(opener OutputOpener) Option {
	return func(s *Session) { s.openOutput = opener }
}

// WithMicrophone enables voice input. Without it the session is text-only.
func WithMicrophone(opener MicrophoneOpener) Option {
	return func(s *Session) { s.openMicrophone = opener }
}

func WithDetector(factory DetectorFactory) Option {
	return func(s *Session) { s.newDetector = factory }
}

func WithGateConfig(config vad.GateConfig) Option {
	return func(s *Session) { s.gateConfig = config }
}

func WithRealtimeURL(url string) Option {
	return func(s *Session) { s.realtimeURL = url }
}

func WithTranscriptionModel(model string) Option {
	return func(s *Session) { s.transcriptionModel = model }
}

func WithDebugCapacity(capacity int) Option {
	return func(s *Session) { s.debugOptions = append(s.debugOptions, debuglog.WithCapacity(capacity)) }
}

func WithDebugEnabled(enabled bool) Option {
	return func(s *Session) { s.debugOptions = append(s.debugOptions, debuglog.WithEnabled(enabled)) }
}

// WithStateCallback is called after every state transition, outside the
// session lock.
func WithStateCallback(callback func(State)) Option {
	return func(s *Session) { s.onStateChange = callback }
}

// WithEventCallback observes every event the session dispatches, after the
// session has handled it.
func WithEventCallback(callback func(events.Event)) Option {
	return func(s *Session) { s.emitter.onEvent = callback }
}

func WithSpeakingStateCallback(callback func(isSpeaking bool)) Option {
	return func(s *Session) { s.emitter.onSpeakingStateChanged = callback }
}

func WithTranscriptionCallback(callback func(transcript string)) Option {
	return func(s *Session) { s.emitter.onTranscription = callback }
}

func WithResponseCallback(callback func(delta string)) Option {
	return func(s *Session) { s.emitter.onResponse = callback }
}

func WithResponseEndCallback(callback func()) Option {
	return func(s *Session) { s.emitter.onResponseEnd = callback }
}

func defaultDialer(ctx context.Context, config realtime.DialConfig) (Conn, error) {
	channel, err := realtime.Dial(ctx, config)
	if err != nil {
		return nil, err
	}
	return channel, nil
}

func defaultDetector() (vad.Detector, error) {
	return vad.NewEnergyDetector(), nil
}
