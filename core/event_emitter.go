package voicechat

import "github.com/koscakluka/ema-realtime/core/events"

type eventEmitter struct {
	onEvent                func(events.Event)
	onSpeakingStateChanged func(bool)
	onTranscription        func(string)
	onResponse             func(string)
	onResponseEnd          func()
}

func (e eventEmitter) emit(event events.Event) {
	switch typedEvent := event.(type) {
	case events.UserSpeechStarted:
		if e.onSpeakingStateChanged != nil {
			e.onSpeakingStateChanged(true)
		}
	case events.UserSpeechEnded, events.UserSpeechMisfire:
		if e.onSpeakingStateChanged != nil {
			e.onSpeakingStateChanged(false)
		}
	case events.TranscriptionCompleted:
		if e.onTranscription != nil {
			e.onTranscription(typedEvent.Transcript)
		}
	case events.TextDelta:
		if e.onResponse != nil {
			e.onResponse(typedEvent.Delta)
		}
	case events.TurnDone:
		if e.onResponseEnd != nil {
			e.onResponseEnd()
		}
	}

	if e.onEvent != nil {
		e.onEvent(event)
	}
}
