package events

const remotePrefix = "remote."

const (
	// KindSessionUpdated identifies acceptance of session parameters.
	KindSessionUpdated Kind = "remote.session_updated"
	// KindAudioDelta identifies a reply audio chunk.
	KindAudioDelta Kind = "remote.audio_delta"
	// KindTextDelta identifies a reply text or transcript chunk.
	KindTextDelta Kind = "remote.text_delta"
	// KindTurnStarted identifies the start of an assistant response.
	KindTurnStarted Kind = "remote.turn_started"
	// KindTurnDone identifies the end of an assistant response.
	KindTurnDone Kind = "remote.turn_done"
	// KindTranscriptionCompleted identifies a transcript of committed user audio.
	KindTranscriptionCompleted Kind = "remote.transcription_completed"
	// KindError identifies an error reported by the service.
	KindError Kind = "remote.error"
	// KindUnknown identifies a message no other kind matched.
	KindUnknown Kind = "remote.unknown"
)

type SessionUpdated struct{ Base }

func NewSessionUpdated() SessionUpdated {
	return SessionUpdated{Base: NewBase(KindSessionUpdated)}
}

// AudioDelta carries base64 encoded PCM16 audio as received.
type AudioDelta struct {
	Base
	Delta string
}

func NewAudioDelta(delta string) AudioDelta {
	return AudioDelta{Base: NewBase(KindAudioDelta), Delta: delta}
}

type TextDelta struct {
	Base
	Delta string
}

func NewTextDelta(delta string) TextDelta {
	return TextDelta{Base: NewBase(KindTextDelta), Delta: delta}
}

type TurnStarted struct{ Base }

func NewTurnStarted() TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted)}
}

type TurnDone struct{ Base }

func NewTurnDone() TurnDone {
	return TurnDone{Base: NewBase(KindTurnDone)}
}

type TranscriptionCompleted struct {
	Base
	Transcript string
}

func NewTranscriptionCompleted(transcript string) TranscriptionCompleted {
	return TranscriptionCompleted{Base: NewBase(KindTranscriptionCompleted), Transcript: transcript}
}

type Error struct {
	Base
	Message string
}

func NewError(message string) Error {
	return Error{Base: NewBase(KindError), Message: message}
}

// Unknown carries the wire type of a message that is not dispatched.
type Unknown struct {
	Base
	Type string
}

func NewUnknown(wireType string) Unknown {
	return Unknown{Base: NewBase(KindUnknown), Type: wireType}
}
