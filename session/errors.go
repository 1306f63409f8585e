package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	// ErrSessionTerminal is returned for turns submitted after the conversation
	// completed or failed.
	ErrSessionTerminal = errors.New("session is no longer accepting input")
	// ErrTurnTimeout is retryable: the session state is as it was before the turn.
	ErrTurnTimeout = errors.New("turn processing timed out")
)
