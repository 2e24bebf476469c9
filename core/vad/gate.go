package vad

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
)

type State int

const (
	StateIdle State = iota
	StateArmed
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateCapturing:
		return "capturing"
	}
	return "unknown"
}

// GateConfig is the operating point of the speech gate. Frame counts are in
// units of FrameSamples.
type GateConfig struct {
	PositiveSpeechThreshold float64
	NegativeSpeechThreshold float64
	FrameSamples            int
	RedemptionFrames        int
	PreSpeechPadFrames      int
	MinSpeechFrames         int
}

// DefaultGateConfig uses 96ms frames at the wire sample rate.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		PositiveSpeechThreshold: 0.8,
		NegativeSpeechThreshold: 0.8 - 0.15,
		FrameSamples:            audio.Samples(96*time.Millisecond, audio.DefaultSampleRate),
		RedemptionFrames:        8,
		PreSpeechPadFrames:      1,
		MinSpeechFrames:         3,
	}
}

func (c GateConfig) validate() error {
	if c.FrameSamples <= 0 {
		return errors.New("frame size must be positive")
	}
	if c.NegativeSpeechThreshold > c.PositiveSpeechThreshold {
		return errors.New("negative threshold must not exceed positive threshold")
	}
	return nil
}

type GateOption func(*Gate)

func WithSpeechStartCallback(callback func()) GateOption {
	return func(g *Gate) { g.onSpeechStart = callback }
}

// WithSpeechEndCallback receives the finalized utterance, including the
// pre-speech padding frames.
func WithSpeechEndCallback(callback func(utterance []float32)) GateOption {
	return func(g *Gate) { g.onSpeechEnd = callback }
}

// WithMisfireCallback is called when speech started but ended before
// MinSpeechFrames positive frames were seen.
func WithMisfireCallback(callback func()) GateOption {
	return func(g *Gate) { g.onMisfire = callback }
}

// Gate wraps a Detector and a Microphone and turns speech-start and
// speech-end transitions into callbacks. A gate is single use: once stopped
// it never fires again, re-arming needs a new Gate.
type Gate struct {
	mic      Microphone
	detector Detector
	config   GateConfig

	onSpeechStart func()
	onSpeechEnd   func(utterance []float32)
	onMisfire     func()

	mu                sync.Mutex
	state             State
	stopped           bool
	pending           []float32
	activeFrames      []scoredFrame
	redemptionCounter int
}

type scoredFrame struct {
	samples     []float32
	probability float64
}

func NewGate(mic Microphone, detector Detector, config GateConfig, opts ...GateOption) *Gate {
	g := &Gate{
		mic:           mic,
		detector:      detector,
		config:        config,
		onSpeechStart: func() {},
		onSpeechEnd:   func([]float32) {},
		onMisfire:     func() {},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start arms the gate and begins capture.
func (g *Gate) Start(ctx context.Context) error {
	if g.mic == nil || g.detector == nil {
		return fmt.Errorf("%w: no microphone or detector configured", ErrCaptureUnavailable)
	}
	if err := g.config.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return fmt.Errorf("%w: gate already stopped", ErrCaptureUnavailable)
	}
	if g.state != StateIdle {
		g.mu.Unlock()
		return nil
	}
	g.state = StateArmed
	g.mu.Unlock()

	if err := g.mic.StartCapture(ctx, g.process); err != nil {
		g.mu.Lock()
		g.state = StateIdle
		g.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return nil
}

// Stop tears the gate down and releases the microphone.
func (g *Gate) Stop() error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	g.state = StateIdle
	g.pending = nil
	g.activeFrames = nil
	g.mu.Unlock()

	if g.mic == nil {
		return nil
	}
	return errors.Join(g.mic.StopCapture(), g.mic.Close())
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

func (g *Gate) process(pcm []byte) {
	var notifications []func()

	g.mu.Lock()
	if g.stopped || g.state == StateIdle {
		g.mu.Unlock()
		return
	}
	g.pending = append(g.pending, audio.PCM16ToSamples(pcm)...)
	for len(g.pending) >= g.config.FrameSamples {
		frame := append([]float32(nil), g.pending[:g.config.FrameSamples]...)
		g.pending = g.pending[g.config.FrameSamples:]
		if notify := g.processFrameLocked(frame); notify != nil {
			notifications = append(notifications, notify)
		}
	}
	g.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the gate.
	for _, notify := range notifications {
		if g.isStopped() {
			return
		}
		notify()
	}
}

func (g *Gate) processFrameLocked(frame []float32) func() {
	probability, err := g.detector.SpeechProbability(frame)
	if err != nil {
		logger.Warn("speech detector failed, treating frame as silence", "error", err)
		probability = 0
	}

	g.activeFrames = append(g.activeFrames, scoredFrame{samples: frame, probability: probability})
	capturing := g.state == StateCapturing

	var notify func()
	switch {
	case probability >= g.config.PositiveSpeechThreshold && capturing:
		g.redemptionCounter = 0
	case probability >= g.config.PositiveSpeechThreshold:
		g.redemptionCounter = 0
		g.state = StateCapturing
		notify = g.onSpeechStart
	case probability < g.config.NegativeSpeechThreshold && capturing:
		g.redemptionCounter++
		if g.redemptionCounter >= g.config.RedemptionFrames {
			notify = g.endSpeechLocked()
		}
	}

	if g.state != StateCapturing {
		if excess := len(g.activeFrames) - g.config.PreSpeechPadFrames; excess > 0 {
			g.activeFrames = g.activeFrames[excess:]
		}
	}
	return notify
}

func (g *Gate) endSpeechLocked() func() {
	frames := g.activeFrames
	g.activeFrames = nil
	g.redemptionCounter = 0
	g.state = StateArmed

	speechFrames := 0
	total := 0
	for _, frame := range frames {
		if frame.probability >= g.config.PositiveSpeechThreshold {
			speechFrames++
		}
		total += len(frame.samples)
	}
	if speechFrames < g.config.MinSpeechFrames {
		return g.onMisfire
	}

	utterance := make([]float32, 0, total)
	for _, frame := range frames {
		utterance = append(utterance, frame.samples...)
	}
	onSpeechEnd := g.onSpeechEnd
	return func() { onSpeechEnd(utterance) }
}
