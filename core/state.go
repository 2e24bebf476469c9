package voicechat

// Status is the coarse state the rest of the product reasons about.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusListening    Status = "listening"
	StatusSpeaking     Status = "speaking"
	StatusResponding   Status = "responding"
)

// State is the session state. Each state has exactly one Status and one
// label, so the two can never disagree.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	// StateConnected is the first listening state after the channel opened.
	StateConnected
	StateListening
	// StateMuted is listening with the microphone switched off by the user.
	StateMuted
	StateSpeaking
	// StateProcessing waits for the reply to a committed utterance.
	StateProcessing
	// StateAnswering is an assistant turn in progress.
	StateAnswering
)

func (s State) Status() Status {
	switch s {
	case StateConnecting:
		return StatusConnecting
	case StateConnected, StateListening, StateMuted:
		return StatusListening
	case StateSpeaking:
		return StatusSpeaking
	case StateProcessing, StateAnswering:
		return StatusResponding
	}
	return StatusDisconnected
}

func (s State) Label() string {
	switch s {
	case StateConnecting:
		return "Authenticating..."
	case StateConnected:
		return "Connected"
	case StateListening:
		return "Listening..."
	case StateMuted:
		return "Muted"
	case StateSpeaking:
		return "Speaking..."
	case StateProcessing:
		return "Processing..."
	case StateAnswering:
		return "Grok speaking..."
	}
	return "Disconnected"
}

func (s State) String() string { return s.Label() }

// IsOpen reports whether the channel is open and negotiated.
func (s State) IsOpen() bool {
	switch s.Status() {
	case StatusDisconnected, StatusConnecting:
		return false
	}
	return true
}

// MicText describes the capture indicator for a state.
func MicText(state State, micActive bool) string {
	if !micActive || !state.IsOpen() {
		return "(Mic Inactive)"
	}
	switch state.Status() {
	case StatusSpeaking:
		return "(Capturing...)"
	case StatusResponding:
		return "(Processing...)"
	}
	return "(Listening...)"
}
