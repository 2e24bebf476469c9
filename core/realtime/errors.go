package realtime

import "errors"

var (
	// ErrAuthFailure is returned when the token endpoint does not issue a
	// usable credential.
	ErrAuthFailure = errors.New("auth failure")
	// ErrChannelFailure is returned when the realtime channel cannot be
	// opened or closes abruptly.
	ErrChannelFailure = errors.New("channel failure")
	// ErrChannelClosed is returned when sending on a closed channel.
	ErrChannelClosed = errors.New("channel closed")
	// ErrProtocol is returned for errors reported by the realtime service and
	// for wire messages that cannot be understood.
	ErrProtocol = errors.New("protocol error")
	// ErrProfileNotFound is returned by session bootstrap for unknown profiles.
	ErrProfileNotFound = errors.New("profile not found")
)
