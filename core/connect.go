package voicechat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/debuglog"
	"github.com/koscakluka/ema-realtime/core/playback"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/vad"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// connectAttempt scopes everything acquired by one Connect call. Resources
// are only attached to the session while the attempt is current; anything
// acquired after the attempt was abandoned is released on the spot.
type connectAttempt struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	bootstrap  Bootstrap
}

func (s *Session) runConnect(attempt *connectAttempt) {
	ctx, span := tracer.Start(attempt.ctx, "connect session",
		trace.WithAttributes(attribute.Int64("attempt.generation", int64(attempt.generation))))
	defer span.End()

	tokenSource := s.tokenSource
	if tokenSource == nil {
		tokenSource = realtime.NewTokenClient(attempt.bootstrap.BackendBaseURL)
	}
	token, err := tokenSource.FetchToken(ctx)
	if err != nil {
		s.failConnect(ctx, attempt, err, "Auth Failed")
		return
	}

	if err := s.attachOutput(ctx, attempt); err != nil {
		s.failConnect(ctx, attempt, err, "Audio output unavailable")
		return
	}

	conn, err := s.dial(ctx, realtime.DialConfig{URL: s.realtimeURL, Token: token})
	if err != nil {
		s.failConnect(ctx, attempt, err, "WebSocket error")
		return
	}
	if !s.attachConn(attempt, conn) {
		return
	}
	s.debug.Record(debuglog.CategoryChannel, "Connected")

	// A written session.update is the negotiation ack; the service never
	// refuses parameters synchronously.
	if err := conn.Send(realtime.NewSessionUpdate(s.sessionConfig(attempt.bootstrap))); err != nil {
		s.failConnect(ctx, attempt, err, "WebSocket error")
		return
	}

	s.mu.Lock()
	if !s.isCurrentLocked(attempt) {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateConnected)
	s.mu.Unlock()
	s.notifyState(StateConnected)

	gate, err := s.armGate(attempt)

	s.mu.Lock()
	if !s.isCurrentLocked(attempt) || errors.Is(err, errAttemptAbandoned) || attempt.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.errorMessage = "Microphone unavailable"
		s.mu.Unlock()

		span.AddEvent("capture unavailable", trace.WithAttributes(attribute.String("error", err.Error())))
		s.debug.Recordf(debuglog.CategorySpeech, "Capture unavailable: %v", err)
		logger.Warn("continuing without microphone", "error", err)
		s.signalUpdate()
		return
	}
	if s.gate == gate {
		s.micActive = true
	}
	s.mu.Unlock()
	s.signalUpdate()
}

// failConnect settles a failed attempt to disconnected, unless the attempt
// was already abandoned. A failure caused by the Connect context ending is
// an abandon and carries no error message.
func (s *Session) failConnect(ctx context.Context, attempt *connectAttempt, err error, message string) {
	s.mu.Lock()
	if !s.isCurrentLocked(attempt) {
		s.mu.Unlock()
		return
	}
	abandoned := attempt.ctx.Err() != nil
	if !abandoned {
		s.errorMessage = message
	}
	release := s.teardownLocked()
	s.mu.Unlock()

	release()
	if abandoned {
		trace.SpanFromContext(ctx).AddEvent("connect abandoned")
		s.debug.Record(debuglog.CategorySystem, "Disconnected, session context ended")
		s.notifyState(StateDisconnected)
		return
	}

	recordedErr := fmt.Errorf("failed to connect: %w", err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(recordedErr)
	span.SetStatus(codes.Error, recordedErr.Error())
	s.debug.Record(debuglog.CategoryError, message)
	logger.Error("connect failed", "error", recordedErr)
	s.notifyState(StateDisconnected)
}

func (s *Session) attachOutput(ctx context.Context, attempt *connectAttempt) error {
	if s.openOutput == nil {
		return ErrOutputUnavailable
	}
	output, err := s.openOutput(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputUnavailable, err)
	}

	scheduler := playback.NewScheduler(output, playback.WithScheduledCallback(func(playback.Segment, time.Duration) {
		scheduledSegments.Add(context.Background(), 1)
	}))

	s.mu.Lock()
	if !s.isCurrentLocked(attempt) {
		s.mu.Unlock()
		if err := output.Close(); err != nil {
			logger.Warn("failed to close abandoned audio output", "error", err)
		}
		return errAttemptAbandoned
	}
	s.output = output
	s.scheduler = scheduler
	s.mu.Unlock()

	s.debug.Record(debuglog.CategorySystem, "Audio Context Started")
	return nil
}

// attachConn registers conn and starts its read loop. It reports false when
// the attempt was abandoned, in which case conn is closed.
func (s *Session) attachConn(attempt *connectAttempt, conn Conn) bool {
	s.mu.Lock()
	if !s.isCurrentLocked(attempt) {
		s.mu.Unlock()
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close abandoned realtime channel", "error", err)
		}
		return false
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(attempt, conn)
	return true
}

func (s *Session) readLoop(attempt *connectAttempt, conn Conn) {
	err := conn.Run(&dispatcher{session: s, attempt: attempt})

	s.mu.Lock()
	if !s.isCurrentLocked(attempt) || s.conn != conn {
		s.mu.Unlock()
		return
	}
	if err == nil {
		// Closed from our side without a teardown; nothing left to read.
		err = realtime.ErrChannelClosed
	}
	if errors.Is(err, realtime.ErrChannelClosed) {
		s.errorMessage = "Connection closed"
	} else {
		s.errorMessage = "WebSocket error"
	}
	release := s.teardownLocked()
	s.mu.Unlock()

	release()
	s.debug.Recordf(debuglog.CategoryChannel, "Closed: %v", err)
	logger.Warn("realtime channel ended", "error", err)
	s.notifyState(StateDisconnected)
}

// armGate builds a fresh speech gate on a fresh detector and microphone and
// attaches it to attempt. Failures wrap vad.ErrCaptureUnavailable.
func (s *Session) armGate(attempt *connectAttempt) (*vad.Gate, error) {
	if attempt == nil {
		return nil, errAttemptAbandoned
	}
	if s.openMicrophone == nil {
		return nil, fmt.Errorf("%w: no microphone configured", vad.ErrCaptureUnavailable)
	}

	detector, err := s.newDetector()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vad.ErrCaptureUnavailable, err)
	}
	mic, err := s.openMicrophone(attempt.ctx)
	if err != nil {
		closeDetector(detector)
		return nil, fmt.Errorf("%w: %w", vad.ErrCaptureUnavailable, err)
	}

	var gate *vad.Gate
	gate = vad.NewGate(mic, detector, s.gateConfig,
		vad.WithSpeechStartCallback(func() { s.onSpeechStarted(gate) }),
		vad.WithSpeechEndCallback(func(utterance []float32) { s.onSpeechEnded(gate, utterance) }),
		vad.WithMisfireCallback(func() { s.onSpeechMisfire(gate) }),
	)

	s.mu.Lock()
	if !s.isCurrentLocked(attempt) || s.gate != nil {
		s.mu.Unlock()
		_ = gate.Stop()
		closeDetector(detector)
		return nil, errAttemptAbandoned
	}
	s.gate = gate
	s.detector = detector
	s.mu.Unlock()

	if err := gate.Start(attempt.ctx); err != nil {
		// A concurrent teardown that already detached the gate releases it.
		s.mu.Lock()
		owned := s.gate == gate
		if owned {
			s.gate = nil
			s.detector = nil
		}
		s.mu.Unlock()
		if owned {
			_ = gate.Stop()
			closeDetector(detector)
		}
		return nil, err
	}

	s.debug.Recordf(debuglog.CategorySpeech, "Armed at %d Hz", audio.DefaultSampleRate)
	return gate, nil
}
