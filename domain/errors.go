package domain

import "errors"

// Error kinds. Every specific error below wraps exactly one of them so
// handlers can switch on the kind with errors.Is.
var (
	ErrValidation    = errors.New("validation-error")
	ErrNotFound      = errors.New("not-found")
	ErrAuthorization = errors.New("authorization-error")
	ErrCapacity      = errors.New("capacity-error")
	ErrInvalidState  = errors.New("invalid-state")
)

var UnexpectedDatabaseError = errors.New("unexpected-database-error")

// Error is a client facing error. Error() returns the code sent over the wire.
type Error struct {
	kind error
	code string
}

func newError(kind error, code string) *Error {
	return &Error{kind: kind, code: code}
}

func (e *Error) Error() string { return e.code }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the kind the error belongs to.
func (e *Error) Kind() error { return e.kind }

// Validation
var (
	ErrMissingToken    = newError(ErrValidation, "missing-player-token")
	ErrTokenTooLong    = newError(ErrValidation, "player-token-too-long")
	ErrEmptyName       = newError(ErrValidation, "empty-name")
	ErrNameTooLong     = newError(ErrValidation, "name-too-long")
	ErrMalformedCode   = newError(ErrValidation, "malformed-room-code")
	ErrUnknownMode     = newError(ErrValidation, "unknown-room-mode")
	ErrEmptyClue       = newError(ErrValidation, "empty-clue")
	ErrClueTooLong     = newError(ErrValidation, "clue-too-long")
	ErrGuessOutOfRange = newError(ErrValidation, "guess-out-of-range")
	ErrCannotKickSelf  = newError(ErrValidation, "cannot-kick-self")
)

// Not found
var (
	ErrRoomNotFound   = newError(ErrNotFound, "room-not-found")
	ErrPlayerNotFound = newError(ErrNotFound, "player-not-found")
	ErrRoundNotFound  = newError(ErrNotFound, "round-not-found")
)

// Authorization
var (
	ErrWrongPassword = newError(ErrAuthorization, "wrong-password")
	ErrNotHost       = newError(ErrAuthorization, "not-host")
	ErrNotInRoom     = newError(ErrAuthorization, "not-in-room")
	ErrNotClueGiver  = newError(ErrAuthorization, "not-clue-giver")
	ErrNotGuesser    = newError(ErrAuthorization, "not-guesser")
)

// Capacity
var ErrRoomFull = newError(ErrCapacity, "room-full")

// Invalid state
var (
	ErrWrongPhase        = newError(ErrInvalidState, "wrong-phase")
	ErrNotEnoughPlayers  = newError(ErrInvalidState, "not-enough-players")
	ErrRoundConflict     = newError(ErrInvalidState, "round-conflict")
	ErrDuplicateRoomCode = newError(ErrInvalidState, "duplicate-room-code")
	ErrRoomFinished      = newError(ErrInvalidState, "room-finished")
)

var (
	TokenError                       = errors.New("token-error")
	ErrInvalidSigningAlg             = errors.New("invalid-signing-algorithm")
	ErrExpiredToken                  = errors.New("expired-token")
	ErrInvalidTokenSignature         = errors.New("invalid-token-signature")
	ErrCorruptedToken                = errors.New("corrupted-token")
	UnexpectedTokenGenerationError   = errors.New("unexpected-token-generation-error")
	UnexpectedTokenVerificationError = errors.New("unexpected-token-verification-error")
	UnexpectedPasswordHashError      = errors.New("unexpected-password-hash-error")
)
