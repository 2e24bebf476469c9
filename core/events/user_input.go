package events

const (
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies a finalized user utterance.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserSpeechMisfire identifies speech too short to be an utterance.
	KindUserSpeechMisfire Kind = "user_input.speech_misfire"
)

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserSpeechEnded carries the finalized utterance samples.
type UserSpeechEnded struct {
	Base
	Samples []float32
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(samples []float32) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded), Samples: samples}
}

// UserSpeechMisfire marks speech that ended before it was long enough.
type UserSpeechMisfire struct{ Base }

// NewUserSpeechMisfire creates a user speech misfire event.
func NewUserSpeechMisfire() UserSpeechMisfire {
	return UserSpeechMisfire{Base: NewBase(KindUserSpeechMisfire)}
}
