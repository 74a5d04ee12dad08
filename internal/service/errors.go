package service

import (
	"errors"

	"note-history-server/internal/repository"
)

var (
	// ErrNoteNotFound is an expected outcome: the id has no current,
	// non-deleted version.
	ErrNoteNotFound = errors.New("note doesn't exist")

	// ErrIntegrity means a version could not be appended without breaking the
	// (id, version) sequence. It points at a bug or a lost race, never at the
	// caller's input.
	ErrIntegrity = repository.ErrIntegrity
)

// ValidationError rejects a request whose parameter set or values do not
// match what the operation accepts. Nothing is written when it is returned.
type ValidationError struct {
	Operation Operation
	Message   string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
