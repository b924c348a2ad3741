package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication   = errors.New("authentication failure")
	ErrInvalidAssertion = fmt.Errorf("%w: invalid identity assertion", ErrAuthentication)
	ErrInvalidSession   = fmt.Errorf("%w: invalid or expired session", ErrAuthentication)

	ErrAccessDenied = errors.New("access denied")
	ErrStorage      = errors.New("storage failure")
	ErrNotFound     = errors.New("note not found")
	ErrOwnership    = errors.New("ownership violation: note belongs to another user")
	ErrDoneNoteMove = errors.New("completed notes are ordered by completion date and cannot be moved")
	ErrInvalidInput = errors.New("invalid input")
)

// StorageError is a failed call to the storage collaborator. It matches
// ErrStorage and, when the collaborator's message says so, ErrNotFound or
// ErrOwnership.
type StorageError struct {
	Action     string
	StatusCode int
	Message    string
	Err        error
}

func (e *StorageError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("storage %s failed (status %d): %s", e.Action, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("storage %s failed: %s", e.Action, e.Message)
}

func (e *StorageError) Unwrap() []error {
	errs := []error{ErrStorage}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
