package voicechat

import "errors"

var (
	// ErrSessionNotReady is returned by Connect before bootstrap data is set.
	ErrSessionNotReady = errors.New("session not ready: bootstrap data missing")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrOutputUnavailable is returned when no audio output can be opened.
	ErrOutputUnavailable = errors.New("audio output unavailable")

	errAttemptAbandoned = errors.New("connect attempt abandoned")
)
