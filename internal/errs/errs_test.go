package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestAlreadyTransferredMatchesImmutable(t *testing.T) {
	if !errors.Is(ErrAlreadyTransferred, ErrImmutableAfterTransfer) {
		t.Error("ErrAlreadyTransferred should match ErrImmutableAfterTransfer")
	}
}

func TestUnavailableWrapsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := fmt.Errorf("complete mission: %w", Unavailable("update mission", cause))

	if !IsUnavailable(err) {
		t.Fatal("expected BackendUnavailableError")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if Unavailable("noop", nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("mission", int64(42))
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected ErrNotFound")
	}
	if err.Error() != "mission 42: not found" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := Invalid("title", "is required")
	if !IsValidation(err) {
		t.Fatal("expected ValidationError")
	}
	if err.Error() != "title: is required" {
		t.Errorf("message = %q, want %q", err.Error(), "title: is required")
	}
}
