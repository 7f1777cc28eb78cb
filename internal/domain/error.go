package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Conversation lifecycle
	ErrActiveChatExists = errors.New("user already has an active chat session")
	ErrNoActiveChat     = errors.New("no active chat session")
	ErrTurnOutOfOrder   = errors.New("turn out of order")
	ErrUnknownEvent     = errors.New("unknown chat event")

	// Completion service
	ErrContextTooLong    = errors.New("context length exceeded")
	ErrMalformedResponse = errors.New("completion response has no usable content")
	ErrLockTimeout       = errors.New("could not acquire chat lock")
)
