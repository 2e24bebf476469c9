package voicechat

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/debuglog"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/playback"
	"github.com/koscakluka/ema-realtime/core/transcript"
)

// dispatcher binds the channel read loop to the attempt that opened it, so
// events from a replaced channel are ignored.
type dispatcher struct {
	session *Session
	attempt *connectAttempt
}

func (d *dispatcher) OnEvent(event events.Event) {
	d.session.dispatch(func() bool { return d.session.isCurrentLocked(d.attempt) }, event)
}

func (d *dispatcher) OnDecodeError(err error) {
	d.session.debug.Recordf(debuglog.CategoryError, "Unreadable message: %v", err)
	logger.Warn("dropping unreadable realtime message", "error", err)
}

// dispatch applies one event to the session if accept, evaluated under the
// session lock, still holds for its source. It reports whether the event was
// applied.
func (s *Session) dispatch(accept func() bool, event events.Event) bool {
	s.mu.Lock()
	if !accept() {
		s.mu.Unlock()
		return false
	}
	before := s.state
	release := s.applyLocked(event)
	after := s.state
	s.mu.Unlock()

	if release != nil {
		release()
	}
	if before != after {
		s.notifyState(after)
	} else {
		s.signalUpdate()
	}
	s.emitter.emit(event)
	return true
}

// applyLocked is the session state machine. It returns resources to release
// once the lock is dropped, if the event ended the session.
func (s *Session) applyLocked(event events.Event) func() {
	switch event := event.(type) {
	case events.SessionUpdated:
		s.debug.Record(debuglog.CategoryChannel, "Session updated")

	case events.AudioDelta:
		s.debug.Recordf(debuglog.CategoryAudioIn, "Received %d chars", len(event.Delta))
		s.enqueueAudioLocked(event.Delta)

	case events.TextDelta:
		s.transcript.AppendFragment(transcript.RoleAssistant, event.Delta, true)

	case events.TurnStarted:
		s.transcript.StartAssistantMessage()
		if s.state.IsOpen() {
			s.setStateLocked(StateAnswering)
		}

	case events.TurnDone:
		s.transcript.FinalizeOpenAssistantMessage()
		if s.state.IsOpen() {
			if s.micActive {
				s.setStateLocked(StateListening)
			} else {
				s.setStateLocked(StateMuted)
			}
		}

	case events.TranscriptionCompleted:
		if event.Transcript != "" {
			s.transcript.RecordUserTranscript(event.Transcript)
		}

	case events.Error:
		s.debug.Record(debuglog.CategoryError, event.Message)
		logger.Error("realtime service reported an error", "message", event.Message)
		s.errorMessage = event.Message
		return s.teardownLocked()

	case events.Unknown:
		logger.Debug("ignoring realtime message", "type", event.Type)

	case events.UserSpeechStarted:
		if s.scheduler != nil {
			s.scheduler.Reset()
		}
		s.setStateLocked(StateSpeaking)
		s.debug.Record(debuglog.CategorySpeech, "Speech started")

	case events.UserSpeechEnded:
		s.setStateLocked(StateProcessing)
		s.debug.Recordf(debuglog.CategorySpeech, "Speech ended, %d samples", len(event.Samples))

	case events.UserSpeechMisfire:
		if s.state == StateSpeaking {
			s.setStateLocked(StateListening)
		}
		s.debug.Record(debuglog.CategorySpeech, "Misfire")
	}
	return nil
}

func (s *Session) enqueueAudioLocked(delta string) {
	samples, err := audio.Decode(delta)
	if err != nil {
		droppedFrames.Add(context.Background(), 1)
		if errors.Is(err, audio.ErrOddByteLength) {
			s.debug.Record(debuglog.CategoryAudioError, "Odd byte length, skipping frame")
		} else {
			s.debug.Record(debuglog.CategoryAudioError, "Invalid audio payload, skipping frame")
		}
		logger.Debug("dropping malformed audio frame", "error", err, "length", len(delta))
		return
	}
	if len(samples) == 0 || s.scheduler == nil {
		return
	}

	s.scheduler.Enqueue(playback.NewSegment(samples))
	receivedSegments.Add(context.Background(), 1)
	s.debug.Recordf(debuglog.CategoryAudio, "Queued %d samples", len(samples))
}
