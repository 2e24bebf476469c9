package voicechat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/playback"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/realtime/realtimetest"
	"github.com/koscakluka/ema-realtime/core/vad"
)

type fakeOutput struct {
	mu      sync.Mutex
	played  []playback.Segment
	clears  int
	closed  bool
	elapsed time.Duration
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.elapsed
}

func (o *fakeOutput) Play(seg playback.Segment, _ time.Duration, _ func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, seg)
}

func (o *fakeOutput) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clears++
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) snapshot() (played int, clears int, closed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.played), o.clears, o.closed
}

type outputRecorder struct {
	mu      sync.Mutex
	outputs []*fakeOutput
}

func (r *outputRecorder) open(context.Context) (AudioOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	output := &fakeOutput{}
	r.outputs = append(r.outputs, output)
	return output, nil
}

func (r *outputRecorder) all() []*fakeOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeOutput(nil), r.outputs...)
}

func (r *outputRecorder) last(t *testing.T) *fakeOutput {
	t.Helper()
	outputs := r.all()
	if len(outputs) == 0 {
		t.Fatalf("expected an audio output to be opened")
	}
	return outputs[len(outputs)-1]
}

type fakeMicrophone struct {
	mu      sync.Mutex
	onAudio func([]byte)
	closed  bool
}

func (m *fakeMicrophone) StartCapture(_ context.Context, onAudio func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudio = onAudio
	return nil
}

func (m *fakeMicrophone) StopCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudio = nil
	return nil
}

func (m *fakeMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMicrophone) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// speak feeds one test-sized frame per level.
func (m *fakeMicrophone) speak(levels ...float32) {
	m.mu.Lock()
	onAudio := m.onAudio
	m.mu.Unlock()
	if onAudio == nil {
		return
	}
	for _, level := range levels {
		frame := make([]float32, testFrameSamples)
		for i := range frame {
			frame[i] = level
		}
		onAudio(audio.SamplesToPCM16(frame))
	}
}

type microphoneRecorder struct {
	mu   sync.Mutex
	mics []*fakeMicrophone
}

func (r *microphoneRecorder) open(context.Context) (vad.Microphone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mic := &fakeMicrophone{}
	r.mics = append(r.mics, mic)
	return mic, nil
}

func (r *microphoneRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mics)
}

func (r *microphoneRecorder) last(t *testing.T) *fakeMicrophone {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.mics) == 0 {
		t.Fatalf("expected a microphone to be opened")
	}
	return r.mics[len(r.mics)-1]
}

// levelDetector reports the first sample as the speech probability.
type levelDetector struct {
	mu     sync.Mutex
	closed bool
}

func (d *levelDetector) SpeechProbability(frame []float32) (float64, error) {
	return float64(frame[0]), nil
}

func (d *levelDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *levelDetector) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type detectorRecorder struct {
	mu        sync.Mutex
	detectors []*levelDetector
}

func (r *detectorRecorder) create() (vad.Detector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	detector := &levelDetector{}
	r.detectors = append(r.detectors, detector)
	return detector, nil
}

func (r *detectorRecorder) all() []*levelDetector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*levelDetector(nil), r.detectors...)
}

type staticToken string

func (t staticToken) FetchToken(context.Context) (string, error) { return string(t), nil }

// fakeConn blocks in Run until closed.
type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	closed bool
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Send(msgs ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return realtime.ErrChannelClosed
	}
	c.sent = append(c.sent, msgs...)
	return nil
}

func (c *fakeConn) Run(realtime.Handler) error {
	<-c.done
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

const testFrameSamples = 4

func testGateConfig() vad.GateConfig {
	return vad.GateConfig{
		PositiveSpeechThreshold: 0.8,
		NegativeSpeechThreshold: 0.65,
		FrameSamples:            testFrameSamples,
		RedemptionFrames:        2,
		PreSpeechPadFrames:      1,
		MinSpeechFrames:         2,
	}
}

type testRig struct {
	server    *realtimetest.Server
	session   *Session
	outputs   *outputRecorder
	mics      *microphoneRecorder
	detectors *detectorRecorder
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	t.Helper()

	rig := &testRig{
		server:    realtimetest.NewServer(t),
		outputs:   &outputRecorder{},
		mics:      &microphoneRecorder{},
		detectors: &detectorRecorder{},
	}
	defaults := []Option{
		WithRealtimeURL(rig.server.RealtimeURL),
		WithAudioOutput(rig.outputs.open),
		WithMicrophone(rig.mics.open),
		WithDetector(rig.detectors.create),
		WithGateConfig(testGateConfig()),
	}
	rig.session = New(append(defaults, opts...)...)
	rig.session.SetBootstrap(Bootstrap{BackendBaseURL: rig.server.BackendURL, VoiceID: "ara"})
	t.Cleanup(rig.session.Close)
	return rig
}

// connect connects and waits for the microphone to be armed.
func (rig *testRig) connect(t *testing.T) {
	t.Helper()
	if err := rig.session.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to start, got %v", err)
	}
	waitForSnapshot(t, rig.session, "listening with mic armed", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusListening && snapshot.MicActive
	})
}

func waitForSnapshot(t *testing.T, session *Session, description string, condition func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snapshot := session.Snapshot()
		if condition(snapshot) {
			return snapshot
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, last snapshot: %+v", description, snapshot)
		}
		select {
		case <-session.Updates():
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitForCondition(t *testing.T, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func countLines(lines []string, category string) int {
	count := 0
	for _, line := range lines {
		if strings.Contains(line, "["+category+"]") {
			count++
		}
	}
	return count
}

// blockingToken closes entered and waits for the context to end.
type blockingToken chan struct{}

func (b blockingToken) FetchToken(ctx context.Context) (string, error) {
	close(b)
	<-ctx.Done()
	return "", ctx.Err()
}
