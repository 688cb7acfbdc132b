package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Duel errors. Every failed operation reports exactly one of these (possibly
// wrapped) and leaves state untouched.
var (
	ErrNotRegistered      = errors.New("player not registered")
	ErrGameNotFound       = errors.New("game not found")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrAlreadyCommitted   = errors.New("already committed")
	ErrNotAParticipant    = errors.New("not a participant")
	ErrInvalidMove        = errors.New("invalid move value")
	ErrCommitmentMismatch = errors.New("move does not match commitment")
	ErrMissingCommitment  = errors.New("no commitment found")
	ErrIncompleteReveal   = errors.New("both players must reveal before finalize")
	ErrTransferFailed     = errors.New("transfer failed")

	ErrSelfPlay          = errors.New("cannot play against yourself")
	ErrAlreadyRevealed   = errors.New("move already revealed")
	ErrTokenMismatch     = errors.New("token does not match game")
	ErrInvalidCommitment = errors.New("invalid commitment")
)
