// Package voicechat runs one realtime voice conversation: it owns the
// channel to the realtime service, the reply playback timeline, the
// microphone speech gate and the transcript, and exposes their state as
// snapshots.
package voicechat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/debuglog"
	"github.com/koscakluka/ema-realtime/core/playback"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/transcript"
	"github.com/koscakluka/ema-realtime/core/vad"
)

const DefaultInstructions = "You are a helpful AI."

// Bootstrap is the data the session needs before it can connect.
type Bootstrap struct {
	BackendBaseURL string
	VoiceID        string
	Instructions   string
}

// Session is a realtime voice chat session. All state is guarded by one
// mutex; device, channel and gate callbacks funnel into it.
type Session struct {
	tokenSource        TokenSource
	dial               Dialer
	openOutput         OutputOpener
	openMicrophone     MicrophoneOpener
	newDetector        DetectorFactory
	gateConfig         vad.GateConfig
	realtimeURL        string
	transcriptionModel string
	debugOptions       []debuglog.SinkOption
	onStateChange      func(State)
	emitter            eventEmitter

	transcript *transcript.Assembler
	debug      *debuglog.Sink

	mu           sync.Mutex
	closed       bool
	state        State
	micActive    bool
	errorMessage string
	bootstrap    *Bootstrap

	generation uint64
	attempt    *connectAttempt
	conn       Conn
	output     AudioOutput
	scheduler  *playback.Scheduler
	gate       *vad.Gate
	detector   vad.Detector

	updateSignal chan struct{}
}

func New(opts ...Option) *Session {
	s := &Session{
		dial:         defaultDialer,
		newDetector:  defaultDetector,
		gateConfig:   vad.DefaultGateConfig(),
		realtimeURL:  realtime.DefaultURL,
		transcript:   transcript.NewAssembler(),
		updateSignal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debug = debuglog.NewSink(s.debugOptions...)
	return s
}

// SetBootstrap supplies voice selection, instructions and the backend URL.
// It takes effect on the next Connect.
func (s *Session) SetBootstrap(bootstrap Bootstrap) {
	s.mu.Lock()
	s.bootstrap = &bootstrap
	s.mu.Unlock()
	s.signalUpdate()
}

// Connect starts connecting in the background and returns once the attempt
// is under way; progress is observed through state. ctx bounds the whole
// session: cancelling it abandons the attempt and stops capture.
//
// A session that is already connected or connecting is torn down first.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.bootstrap == nil || s.bootstrap.BackendBaseURL == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: set the backend URL and voice before connecting", ErrSessionNotReady)
	}

	release := func() {}
	if s.state != StateDisconnected || s.attempt != nil {
		release = s.teardownLocked()
	}

	s.generation++
	attemptCtx, cancel := context.WithCancel(ctx)
	attempt := &connectAttempt{
		generation: s.generation,
		ctx:        attemptCtx,
		cancel:     cancel,
		bootstrap:  *s.bootstrap,
	}
	s.attempt = attempt
	s.errorMessage = ""
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	context.AfterFunc(attemptCtx, func() { s.abandonAttempt(attempt) })

	release()
	s.notifyState(StateConnecting)
	connectionAttempts.Add(ctx, 1)

	go s.runConnect(attempt)
	return nil
}

// Disconnect closes the channel, stops capture, resets playback and releases
// the audio output. It also abandons a connect attempt in flight.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected && s.attempt == nil {
		s.mu.Unlock()
		return
	}
	release := s.teardownLocked()
	s.mu.Unlock()

	release()
	s.debug.Record(debuglog.CategorySystem, "Disconnected")
	s.notifyState(StateDisconnected)
}

// abandonAttempt disconnects without an error message when the context given
// to Connect ends while attempt is still current.
func (s *Session) abandonAttempt(attempt *connectAttempt) {
	s.mu.Lock()
	if !s.isCurrentLocked(attempt) {
		s.mu.Unlock()
		return
	}
	release := s.teardownLocked()
	s.mu.Unlock()

	release()
	s.debug.Record(debuglog.CategorySystem, "Disconnected, session context ended")
	logger.Info("session context ended", "cause", context.Cause(attempt.ctx))
	s.notifyState(StateDisconnected)
}

// Close disconnects and makes the session unusable.
func (s *Session) Close() {
	s.Disconnect()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SendText echoes typed text into the transcript and sends it with a
// response request. If the channel is not open the message is only echoed.
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	s.transcript.AppendFragment(transcript.RoleUser, text, false)
	conn := s.conn
	open := conn != nil && s.state.IsOpen()
	s.mu.Unlock()
	s.signalUpdate()

	if !open {
		s.debug.Record(debuglog.CategorySend, "Channel not open, message not sent")
		return nil
	}

	if err := conn.Send(realtime.NewUserTextItem(text), realtime.NewResponseCreate()); err != nil {
		s.debug.Recordf(debuglog.CategorySend, "Send failed: %v", err)
		return fmt.Errorf("failed to send text: %w", err)
	}
	s.debug.Recordf(debuglog.CategorySend, "Sent %d chars of text", len(text))
	return nil
}

// ToggleMic switches voice input. While disconnected it connects instead,
// and ctx then bounds the new session as in [Session.Connect]. Otherwise ctx
// is unused: a re-armed microphone lives as long as the connected session.
func (s *Session) ToggleMic(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateDisconnected:
		s.mu.Unlock()
		return s.Connect(ctx)
	case s.state == StateConnecting:
		s.mu.Unlock()
		return nil
	case s.micActive:
		release := s.disarmLocked()
		s.setStateLocked(StateMuted)
		s.mu.Unlock()

		release()
		s.notifyState(StateMuted)
		return nil
	}
	attempt := s.attempt
	s.mu.Unlock()

	gate, err := s.armGate(attempt)

	s.mu.Lock()
	if !s.isCurrentLocked(attempt) || errors.Is(err, errAttemptAbandoned) || attempt.ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.errorMessage = "Microphone unavailable"
		s.mu.Unlock()
		s.debug.Recordf(debuglog.CategorySpeech, "Capture unavailable: %v", err)
		s.signalUpdate()
		return err
	}
	if s.gate != gate {
		s.mu.Unlock()
		return nil
	}
	s.micActive = true
	s.setStateLocked(StateListening)
	s.mu.Unlock()

	s.notifyState(StateListening)
	return nil
}

func (s *Session) SetDebugEnabled(enabled bool) {
	s.debug.SetEnabled(enabled)
	s.signalUpdate()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates is signalled whenever observable state may have changed. Signals
// coalesce; read Snapshot after receiving one.
func (s *Session) Updates() <-chan struct{} {
	return s.updateSignal
}

func (s *Session) signalUpdate() {
	select {
	case s.updateSignal <- struct{}{}:
	default:
	}
}

func (s *Session) setStateLocked(state State) {
	s.state = state
}

func (s *Session) notifyState(state State) {
	s.signalUpdate()
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}

func (s *Session) isCurrentLocked(attempt *connectAttempt) bool {
	return attempt != nil && s.attempt == attempt
}

// teardownLocked detaches every resource of the current attempt and settles
// the state to disconnected. The returned func releases the detached
// resources and must be called without holding the lock: stopping capture
// waits for in-flight gate callbacks, which take the lock.
func (s *Session) teardownLocked() func() {
	attempt := s.attempt
	conn, output, scheduler := s.conn, s.output, s.scheduler
	releaseGate := s.disarmLocked()

	s.attempt = nil
	s.conn = nil
	s.output = nil
	s.scheduler = nil
	s.setStateLocked(StateDisconnected)

	return func() {
		if attempt != nil {
			attempt.cancel()
		}
		releaseGate()
		if conn != nil {
			if err := conn.Close(); err != nil {
				logger.Warn("failed to close realtime channel", "error", err)
			}
		}
		if scheduler != nil {
			scheduler.Reset()
		}
		if output != nil {
			if err := output.Close(); err != nil {
				logger.Warn("failed to close audio output", "error", err)
			}
		}
	}
}

// disarmLocked detaches the speech gate and its detector.
func (s *Session) disarmLocked() func() {
	gate, detector := s.gate, s.detector
	s.gate = nil
	s.detector = nil
	s.micActive = false

	return func() {
		if gate != nil {
			if err := gate.Stop(); err != nil {
				logger.Warn("failed to stop speech gate", "error", err)
			}
		}
		closeDetector(detector)
	}
}

func closeDetector(detector vad.Detector) {
	if closer, ok := detector.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close speech detector", "error", err)
		}
	}
}

func (s *Session) sessionConfig(bootstrap Bootstrap) realtime.SessionConfig {
	instructions := bootstrap.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	return realtime.SessionConfig{
		Instructions:       instructions,
		Voice:              bootstrap.VoiceID,
		TranscriptionModel: s.transcriptionModel,
		EncodingInfo:       audio.GetDefaultEncodingInfo(),
	}
}
