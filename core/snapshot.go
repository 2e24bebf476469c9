package voicechat

import "github.com/koscakluka/ema-realtime/core/transcript"

// Snapshot is a point-in-time copy of everything the UI renders. It shares
// no memory with the session.
type Snapshot struct {
	State        State
	Status       Status
	StatusText   string
	MicText      string
	MicActive    bool
	Error        string
	VoiceID      string
	Messages     []transcript.Message
	DebugEnabled bool
	DebugLines   []string
	// PendingAudio is the number of reply segments waiting to play.
	PendingAudio int
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	view := Snapshot{
		State:      s.state,
		Status:     s.state.Status(),
		StatusText: s.state.Label(),
		MicText:    MicText(s.state, s.micActive),
		MicActive:  s.micActive,
		Error:      s.errorMessage,
		Messages:   s.transcript.Messages(),
	}
	if s.bootstrap != nil {
		view.VoiceID = s.bootstrap.VoiceID
	}
	if s.scheduler != nil {
		view.PendingAudio = s.scheduler.Pending()
	}
	s.mu.Unlock()

	view.DebugEnabled = s.debug.Enabled()
	view.DebugLines = s.debug.Lines()
	return view
}
