// Package errs defines the error taxonomy shared by the mission, settlement,
// streak and allowance services. Handlers translate these into HTTP statuses.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrImmutableAfterTransfer rejects any edit, delete or uncomplete of a
	// mission whose reward has already been paid into the ledger.
	ErrImmutableAfterTransfer = errors.New("mission is immutable after transfer")

	// ErrAlreadyTransferred is returned when completing a paid mission.
	// It matches ErrImmutableAfterTransfer under errors.Is.
	ErrAlreadyTransferred = fmt.Errorf("mission already transferred: %w", ErrImmutableAfterTransfer)

	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrAlreadyClaimed = errors.New("bonus already claimed")
)

// ValidationError reports malformed input caught before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// BackendUnavailableError wraps a storage failure. Callers may retry.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s: backend unavailable: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a BackendUnavailableError, passing nil through.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendUnavailableError{Op: op, Err: err}
}

// NotFound wraps ErrNotFound with the kind and id that were missing.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// ConsistencyWarning is a non-fatal finding of the streak verifier. It is
// reported for manual remediation and never auto-corrected.
type ConsistencyWarning struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (w ConsistencyWarning) Error() string {
	return "consistency warning (" + w.Kind + "): " + w.Detail
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable reports whether err is a BackendUnavailableError.
func IsUnavailable(err error) bool {
	var be *BackendUnavailableError
	return errors.As(err, &be)
}
