// Package fault defines the error kinds shared by the ledger components.
//
// Every error that leaves a repository or service wraps exactly one of the
// sentinel kinds below, so callers classify with errors.Is or KindOf instead of
// matching strings.
package fault

import (
	"errors"
	"fmt"
)

var (
	// caller's fault, never retried
	ErrValidation = errors.New("validation error")

	// uniqueness violation: username, nullifier spend key
	ErrConflict = errors.New("conflict")

	ErrNotFound = errors.New("not found")

	// transient store failure, retryable with backoff
	ErrStoreIO = errors.New("store i/o error")

	// a multi-step operation committed some but not all of its steps
	ErrPartialFailure = errors.New("partial failure")

	ErrUnauthorized = errors.New("unauthorized")
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindStoreIO        Kind = "store_io"
	KindPartialFailure Kind = "partial_failure"
	KindUnauthorized   Kind = "unauthorized"
	KindUnknown        Kind = "unknown"
)

// KindOf reports the kind of err. Partial failure wins over the kind of its
// cause because the caller has to reconcile, not just retry.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialFailure):
		return KindPartialFailure
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStoreIO):
		return KindStoreIO
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	}
	return KindUnknown
}

// Retryable is true for transient store failures and partial failures.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreIO) || errors.Is(err, ErrPartialFailure)
}

// Validation builds a validation error for op.
func Validation(op string, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrValidation, fmt.Sprintf(format, args...))
}

// PartialFailure describes a multi-step operation that stopped after some of
// its steps were committed. The ids are what a reconciliation pass needs.
type PartialFailure struct {
	Op         string
	Step       string
	TransferID string
	RecordID   string
	Err        error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: partial failure at step %q (transfer %s, record %s): %v",
		e.Op, e.Step, e.TransferID, e.RecordID, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

func (e *PartialFailure) Is(target error) bool { return target == ErrPartialFailure }
