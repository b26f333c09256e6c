package ledger

import "errors"

// ErrNotFound is returned when a transaction lookup misses. Callers that
// treat missing transactions as a logged no-op should check for it with
// errors.Is and continue.
var ErrNotFound = errors.New("transaction not found")

// ErrInvalidTransition is returned when a status change violates the
// transaction state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrResponseAlreadySet is returned when AttachResponse is called on a
// transaction that already carries a response.
var ErrResponseAlreadySet = errors.New("response already attached")
