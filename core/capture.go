package voicechat

import (
	"context"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/debuglog"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/vad"
)

// Gate callbacks carry the gate they came from; a gate that was replaced or
// disarmed no longer moves the session.

func (s *Session) onSpeechStarted(gate *vad.Gate) {
	s.dispatch(s.ownsGate(gate), events.NewUserSpeechStarted())
}

func (s *Session) onSpeechMisfire(gate *vad.Gate) {
	s.dispatch(s.ownsGate(gate), events.NewUserSpeechMisfire())
}

func (s *Session) onSpeechEnded(gate *vad.Gate, utterance []float32) {
	if !s.dispatch(s.ownsGate(gate), events.NewUserSpeechEnded(utterance)) {
		return
	}
	s.sendUtterance(gate, utterance)
}

func (s *Session) ownsGate(gate *vad.Gate) func() bool {
	return func() bool { return gate != nil && s.gate == gate }
}

// sendUtterance transmits the utterance as one append+commit pair.
func (s *Session) sendUtterance(gate *vad.Gate, utterance []float32) {
	frame := audio.Encode(utterance)
	if frame == "" {
		return
	}

	s.mu.Lock()
	conn := s.conn
	open := s.gate == gate && conn != nil && s.state.IsOpen()
	s.mu.Unlock()
	if !open {
		s.debug.Record(debuglog.CategorySend, "Channel not open, utterance not sent")
		return
	}

	if err := conn.Send(realtime.NewAudioAppend(frame), realtime.NewAudioCommit()); err != nil {
		s.debug.Recordf(debuglog.CategorySend, "Utterance send failed: %v", err)
		logger.Warn("failed to send utterance", "error", err)
		return
	}
	sentUtterances.Add(context.Background(), 1)
	s.debug.Recordf(debuglog.CategorySend, "Sent utterance of %d samples", len(utterance))
}
