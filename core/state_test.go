package voicechat

import "testing"

func TestStateStatusAndLabel(t *testing.T) {
	testCases := []struct {
		state  State
		status Status
		label  string
		open   bool
	}{
		{StateDisconnected, StatusDisconnected, "Disconnected", false},
		{StateConnecting, StatusConnecting, "Authenticating...", false},
		{StateConnected, StatusListening, "Connected", true},
		{StateListening, StatusListening, "Listening...", true},
		{StateMuted, StatusListening, "Muted", true},
		{StateSpeaking, StatusSpeaking, "Speaking...", true},
		{StateProcessing, StatusResponding, "Processing...", true},
		{StateAnswering, StatusResponding, "Grok speaking...", true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.label, func(t *testing.T) {
			if got := testCase.state.Status(); got != testCase.status {
				t.Fatalf("expected status %s, got %s", testCase.status, got)
			}
			if got := testCase.state.Label(); got != testCase.label {
				t.Fatalf("expected label %q, got %q", testCase.label, got)
			}
			if got := testCase.state.IsOpen(); got != testCase.open {
				t.Fatalf("expected open %v, got %v", testCase.open, got)
			}
		})
	}
}

func TestMicText(t *testing.T) {
	testCases := []struct {
		name      string
		state     State
		micActive bool
		expected  string
	}{
		{"disconnected", StateDisconnected, true, "(Mic Inactive)"},
		{"connecting", StateConnecting, true, "(Mic Inactive)"},
		{"muted", StateMuted, false, "(Mic Inactive)"},
		{"connected without mic", StateConnected, false, "(Mic Inactive)"},
		{"listening", StateListening, true, "(Listening...)"},
		{"speaking", StateSpeaking, true, "(Capturing...)"},
		{"processing", StateProcessing, true, "(Processing...)"},
		{"answering", StateAnswering, true, "(Processing...)"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := MicText(testCase.state, testCase.micActive); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}
