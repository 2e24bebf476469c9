package voicechat

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/realtime/realtimetest"
	"github.com/koscakluka/ema-realtime/core/transcript"
	"github.com/koscakluka/ema-realtime/core/vad"
)

func TestConnectWithoutBootstrapIsNotReady(t *testing.T) {
	outputs := &outputRecorder{}
	session := New(WithAudioOutput(outputs.open), WithTokenSource(staticToken("t")))
	defer session.Close()

	err := session.Connect(context.Background())
	if !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("expected ErrSessionNotReady, got %v", err)
	}

	snapshot := session.Snapshot()
	if snapshot.Status != StatusDisconnected {
		t.Fatalf("expected to stay disconnected, got %s", snapshot.Status)
	}
	if snapshot.Error != "" {
		t.Fatalf("expected no error message side effect, got %q", snapshot.Error)
	}
	if len(outputs.all()) != 0 {
		t.Fatalf("expected no audio output to be opened")
	}
}

func TestConnectReachesListening(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	snapshot := rig.session.Snapshot()
	if snapshot.MicText != "(Listening...)" {
		t.Fatalf("expected mic text (Listening...), got %q", snapshot.MicText)
	}
	if snapshot.StatusText != "Connected" {
		t.Fatalf("expected status text Connected, got %q", snapshot.StatusText)
	}
	if len(snapshot.Messages) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(snapshot.Messages))
	}

	messages := rig.server.WaitForMessages(t, 1)
	if messages[0].Type != realtime.TypeSessionUpdate {
		t.Fatalf("expected session.update first, got %s", messages[0].Type)
	}
	if rig.server.TokenCalls() != 1 {
		t.Fatalf("expected one token request, got %d", rig.server.TokenCalls())
	}
}

func TestConnectAuthFailureReleasesNothing(t *testing.T) {
	server := realtimetest.NewServer(t, realtimetest.WithTokenStatus(http.StatusUnauthorized))
	outputs := &outputRecorder{}
	session := New(WithRealtimeURL(server.RealtimeURL), WithAudioOutput(outputs.open))
	defer session.Close()
	session.SetBootstrap(Bootstrap{BackendBaseURL: server.BackendURL})

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to start, got %v", err)
	}

	snapshot := waitForSnapshot(t, session, "auth failure", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusDisconnected && snapshot.Error != ""
	})
	if snapshot.Error != "Auth Failed" {
		t.Fatalf("expected Auth Failed, got %q", snapshot.Error)
	}
	if len(outputs.all()) != 0 {
		t.Fatalf("expected no audio output to be opened after auth failure")
	}
}

func TestMalformedAudioWhileSpeaking(t *testing.T) {
	testCases := []struct {
		name     string
		debug    bool
		expected int
	}{
		{name: "debug enabled", debug: true, expected: 1},
		{name: "debug disabled", debug: false, expected: 0},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			rig := newTestRig(t)
			rig.connect(t)
			rig.session.SetDebugEnabled(testCase.debug)

			rig.mics.last(t).speak(1)
			waitForSnapshot(t, rig.session, "speaking", func(snapshot Snapshot) bool {
				return snapshot.Status == StatusSpeaking
			})

			// "AQID" decodes to three bytes.
			rig.server.Emit(t, map[string]any{"type": "response.audio.delta", "delta": "AQID"})
			rig.server.Emit(t, map[string]any{
				"type":       "conversation.item.input_audio_transcription.completed",
				"transcript": "barrier",
			})
			snapshot := waitForSnapshot(t, rig.session, "barrier transcript", func(snapshot Snapshot) bool {
				return len(snapshot.Messages) == 1
			})

			if snapshot.Status != StatusSpeaking {
				t.Fatalf("expected status to stay speaking, got %s", snapshot.Status)
			}
			if got := countLines(snapshot.DebugLines, "AUDIO_ERR"); got != testCase.expected {
				t.Fatalf("expected %d AUDIO_ERR entries, got %d: %v", testCase.expected, got, snapshot.DebugLines)
			}
			if played, _, _ := rig.outputs.last(t).snapshot(); played != 0 {
				t.Fatalf("expected malformed frame not to be played, got %d segments", played)
			}
		})
	}
}

func TestSendTextEchoesAndSendsOrderedPair(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	if err := rig.session.SendText("  hi  "); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}

	messages := rig.session.Snapshot().Messages
	if len(messages) != 1 {
		t.Fatalf("expected one echoed message, got %d", len(messages))
	}
	if messages[0].Role != transcript.RoleUser || messages[0].Text != "hi" || !messages[0].Finalized {
		t.Fatalf("expected finalized user message %q, got %+v", "hi", messages[0])
	}

	received := rig.server.WaitForMessages(t, 3)
	if received[1].Type != realtime.TypeConversationItemCreate || received[2].Type != realtime.TypeResponseCreate {
		t.Fatalf("expected item create then response create, got %s then %s", received[1].Type, received[2].Type)
	}
}

func TestSendTextIgnoresBlankInput(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.session.SendText("   "); err != nil {
		t.Fatalf("expected blank send to be ignored, got %v", err)
	}
	if got := len(rig.session.Snapshot().Messages); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}

func TestSendTextWhileDisconnectedOnlyEchoes(t *testing.T) {
	rig := newTestRig(t, WithDebugEnabled(true))

	if err := rig.session.SendText("hello?"); err != nil {
		t.Fatalf("expected dropped send not to fail, got %v", err)
	}

	snapshot := rig.session.Snapshot()
	if len(snapshot.Messages) != 1 || snapshot.Messages[0].Text != "hello?" {
		t.Fatalf("expected local echo, got %+v", snapshot.Messages)
	}
	if got := countLines(snapshot.DebugLines, "TX"); got != 1 {
		t.Fatalf("expected one TX entry for the dropped send, got %d", got)
	}
	if got := len(rig.server.Messages()); got != 0 {
		t.Fatalf("expected nothing sent, got %d messages", got)
	}
}

func TestDisconnectMidConnectReleasesResources(t *testing.T) {
	dialing := make(chan struct{})
	outputs := &outputRecorder{}
	detectors := &detectorRecorder{}
	mics := &microphoneRecorder{}

	session := New(
		WithTokenSource(staticToken("t")),
		WithAudioOutput(outputs.open),
		WithMicrophone(mics.open),
		WithDetector(detectors.create),
		WithDialer(func(ctx context.Context, _ realtime.DialConfig) (Conn, error) {
			close(dialing)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)
	defer session.Close()
	session.SetBootstrap(Bootstrap{BackendBaseURL: "http://backend.invalid"})

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to start, got %v", err)
	}
	<-dialing
	if got := session.State(); got != StateConnecting {
		t.Fatalf("expected connecting while dial is pending, got %s", got)
	}

	session.Disconnect()

	snapshot := waitForSnapshot(t, session, "disconnected", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusDisconnected
	})
	if snapshot.Error != "" {
		t.Fatalf("expected abandoned connect not to surface an error, got %q", snapshot.Error)
	}

	_, _, closed := outputs.last(t).snapshot()
	if !closed {
		t.Fatalf("expected audio output to be released")
	}
	for _, detector := range detectors.all() {
		if !detector.isClosed() {
			t.Fatalf("expected every created detector to be released")
		}
	}
	if mics.count() != 0 {
		t.Fatalf("expected no microphone to be opened before the channel opened")
	}
}

func TestLateChannelAfterDisconnectIsClosed(t *testing.T) {
	dialing := make(chan struct{})
	proceed := make(chan struct{})
	conn := newFakeConn()

	session := New(
		WithTokenSource(staticToken("t")),
		WithAudioOutput((&outputRecorder{}).open),
		WithDialer(func(context.Context, realtime.DialConfig) (Conn, error) {
			close(dialing)
			<-proceed
			return conn, nil
		}),
	)
	defer session.Close()
	session.SetBootstrap(Bootstrap{BackendBaseURL: "http://backend.invalid"})

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to start, got %v", err)
	}
	<-dialing
	session.Disconnect()
	close(proceed)

	waitForCondition(t, "late channel to be closed", conn.isClosed)
	if got := session.State(); got != StateDisconnected {
		t.Fatalf("expected to stay disconnected, got %s", got)
	}
}

func TestReconnectTearsDownPreviousSession(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	first := rig.outputs.last(t)
	firstMic := rig.mics.last(t)

	rig.connect(t)

	if _, _, closed := first.snapshot(); !closed {
		t.Fatalf("expected previous audio output to be closed on reconnect")
	}
	if !firstMic.isClosed() {
		t.Fatalf("expected previous microphone to be released on reconnect")
	}
	if got := len(rig.outputs.all()); got != 2 {
		t.Fatalf("expected a fresh output for the new session, got %d outputs", got)
	}
}

func TestDisconnectReleasesEverything(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	mic := rig.mics.last(t)

	rig.session.Disconnect()

	snapshot := rig.session.Snapshot()
	if snapshot.Status != StatusDisconnected || snapshot.MicText != "(Mic Inactive)" {
		t.Fatalf("expected disconnected with inactive mic, got %s %q", snapshot.Status, snapshot.MicText)
	}
	if _, _, closed := rig.outputs.last(t).snapshot(); !closed {
		t.Fatalf("expected audio output to be closed")
	}
	if !mic.isClosed() {
		t.Fatalf("expected microphone to be released")
	}
	for _, detector := range rig.detectors.all() {
		if !detector.isClosed() {
			t.Fatalf("expected detector to be released")
		}
	}
}

func TestRemoteErrorDisconnects(t *testing.T) {
	rig := newTestRig(t, WithDebugEnabled(true))
	rig.connect(t)

	rig.server.Emit(t, map[string]any{"type": "error", "error": map[string]any{"message": "session expired"}})

	snapshot := waitForSnapshot(t, rig.session, "disconnect after remote error", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusDisconnected
	})
	if snapshot.Error != "session expired" {
		t.Fatalf("expected remote error message, got %q", snapshot.Error)
	}
	if got := countLines(snapshot.DebugLines, "ERR"); got != 1 {
		t.Fatalf("expected one ERR entry, got %d: %v", got, snapshot.DebugLines)
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	rig.server.CloseClient(t, websocket.CloseGoingAway)

	snapshot := waitForSnapshot(t, rig.session, "disconnect after remote close", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusDisconnected
	})
	if snapshot.Error != "Connection closed" {
		t.Fatalf("expected Connection closed, got %q", snapshot.Error)
	}
	if _, _, closed := rig.outputs.last(t).snapshot(); !closed {
		t.Fatalf("expected audio output to be released")
	}
}

func TestToggleMic(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)
	first := rig.mics.last(t)

	if err := rig.session.ToggleMic(context.Background()); err != nil {
		t.Fatalf("expected mic off to succeed, got %v", err)
	}
	snapshot := rig.session.Snapshot()
	if snapshot.StatusText != "Muted" || snapshot.MicText != "(Mic Inactive)" || snapshot.Status != StatusListening {
		t.Fatalf("expected muted listening state, got %s %q %q", snapshot.Status, snapshot.StatusText, snapshot.MicText)
	}
	if !first.isClosed() {
		t.Fatalf("expected microphone to be released when muted")
	}

	if err := rig.session.ToggleMic(context.Background()); err != nil {
		t.Fatalf("expected mic on to succeed, got %v", err)
	}
	snapshot = rig.session.Snapshot()
	if !snapshot.MicActive || snapshot.MicText != "(Listening...)" || snapshot.StatusText != "Listening..." {
		t.Fatalf("expected listening with active mic, got %q %q", snapshot.StatusText, snapshot.MicText)
	}
	if rig.mics.count() != 2 {
		t.Fatalf("expected a fresh microphone after re-arming, got %d", rig.mics.count())
	}
	if got := len(rig.detectors.all()); got != 2 {
		t.Fatalf("expected a fresh detector after re-arming, got %d", got)
	}
}

func TestToggleMicWhileDisconnectedConnects(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.session.ToggleMic(context.Background()); err != nil {
		t.Fatalf("expected toggle to start connecting, got %v", err)
	}
	waitForSnapshot(t, rig.session, "connected after toggle", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusListening && snapshot.MicActive
	})
}

func TestCaptureUnavailableKeepsTextMode(t *testing.T) {
	server := realtimetest.NewServer(t)
	session := New(
		WithRealtimeURL(server.RealtimeURL),
		WithAudioOutput((&outputRecorder{}).open),
		WithMicrophone(func(context.Context) (vad.Microphone, error) {
			return nil, errors.New("no capture device")
		}),
	)
	defer session.Close()
	session.SetBootstrap(Bootstrap{BackendBaseURL: server.BackendURL})

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to start, got %v", err)
	}
	snapshot := waitForSnapshot(t, session, "connected without mic", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusListening && snapshot.Error != ""
	})
	if snapshot.MicActive || snapshot.MicText != "(Mic Inactive)" {
		t.Fatalf("expected inactive mic, got %q", snapshot.MicText)
	}

	if err := session.SendText("typed"); err != nil {
		t.Fatalf("expected text to work without mic, got %v", err)
	}
	received := server.WaitForMessages(t, 3)
	if received[1].Type != realtime.TypeConversationItemCreate {
		t.Fatalf("expected typed text to be sent, got %s", received[1].Type)
	}

	if err := session.ToggleMic(context.Background()); !errors.Is(err, vad.ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable when arming fails, got %v", err)
	}
}

func TestInboundAudioIsScheduled(t *testing.T) {
	rig := newTestRig(t, WithDebugEnabled(true))
	rig.connect(t)

	rig.server.Emit(t, map[string]any{
		"type":  "response.output_audio.delta",
		"delta": audio.Encode([]float32{0.1, 0.2, 0.3}),
	})

	output := rig.outputs.last(t)
	waitForCondition(t, "segment to be played", func() bool {
		played, _, _ := output.snapshot()
		return played == 1
	})

	lines := rig.session.Snapshot().DebugLines
	if countLines(lines, "RX_AUDIO") != 1 || countLines(lines, "AUDIO") != 1 {
		t.Fatalf("expected one RX_AUDIO and one AUDIO entry, got %v", lines)
	}
}

func TestCancellingConnectContextEndsConnectedSession(t *testing.T) {
	rig := newTestRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rig.session.Connect(ctx); err != nil {
		t.Fatalf("expected connect to start, got %v", err)
	}
	waitForSnapshot(t, rig.session, "listening with mic armed", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusListening && snapshot.MicActive
	})
	mic := rig.mics.last(t)

	cancel()

	snapshot := waitForSnapshot(t, rig.session, "disconnected after cancel", func(snapshot Snapshot) bool {
		return snapshot.Status == StatusDisconnected
	})
	if snapshot.Error != "" {
		t.Fatalf("expected no error message after cancel, got %q", snapshot.Error)
	}
	if snapshot.MicActive {
		t.Fatalf("expected mic to be inactive after cancel")
	}
	if !mic.isClosed() {
		t.Fatalf("expected microphone to be released after cancel")
	}
	if _, _, closed := rig.outputs.last(t).snapshot(); !closed {
		t.Fatalf("expected audio output to be released after cancel")
	}
}

func TestCancellingMidConnectIsSilent(t *testing.T) {
	testCases := []struct {
		name    string
		options func(entered chan struct{}) []Option
	}{
		{
			name: "while fetching the token",
			options: func(entered chan struct{}) []Option {
				return []Option{WithTokenSource(blockingToken(entered))}
			},
		},
		{
			name: "while dialing",
			options: func(entered chan struct{}) []Option {
				return []Option{
					WithTokenSource(staticToken("t")),
					WithDialer(func(ctx context.Context, _ realtime.DialConfig) (Conn, error) {
						close(entered)
						<-ctx.Done()
						return nil, ctx.Err()
					}),
				}
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			entered := make(chan struct{})
			opts := append([]Option{
				WithAudioOutput((&outputRecorder{}).open),
				WithDebugEnabled(true),
			}, testCase.options(entered)...)
			session := New(opts...)
			defer session.Close()
			session.SetBootstrap(Bootstrap{BackendBaseURL: "http://backend.invalid"})

			ctx, cancel := context.WithCancel(context.Background())
			if err := session.Connect(ctx); err != nil {
				t.Fatalf("expected connect to start, got %v", err)
			}
			<-entered
			cancel()

			snapshot := waitForSnapshot(t, session, "disconnected after cancel", func(snapshot Snapshot) bool {
				return snapshot.Status == StatusDisconnected
			})
			if snapshot.Error != "" {
				t.Fatalf("expected no error message, got %q", snapshot.Error)
			}
			if got := countLines(snapshot.DebugLines, "ERR"); got != 0 {
				t.Fatalf("expected no ERR entries, got %v", snapshot.DebugLines)
			}
		})
	}
}

func TestToggleMicRearmIgnoresCallerContext(t *testing.T) {
	rig := newTestRig(t)
	rig.connect(t)

	if err := rig.session.ToggleMic(context.Background()); err != nil {
		t.Fatalf("expected mute to succeed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rig.session.ToggleMic(ctx); err != nil {
		t.Fatalf("expected re-arm to succeed, got %v", err)
	}

	snapshot := rig.session.Snapshot()
	if !snapshot.MicActive || snapshot.Status != StatusListening {
		t.Fatalf("expected active mic on a connected session, got %s mic=%v", snapshot.Status, snapshot.MicActive)
	}
	if rig.mics.last(t).isClosed() {
		t.Fatalf("expected re-armed microphone to stay open")
	}
}
