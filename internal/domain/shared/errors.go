package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies ledger failures for callers that map them onto transports
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindAuthorization     ErrorKind = "UNAUTHORIZED"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindPersistence       ErrorKind = "PERSISTENCE"
	KindUnknown           ErrorKind = "UNKNOWN"
)

// Kinder is implemented by every typed ledger error
type Kinder interface {
	Kind() ErrorKind
}

// KindOf returns the kind of the first typed error in err's chain
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// ValidationError rejects malformed input before any write happens
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Kind() ErrorKind { return KindValidation }

// ErrUnauthorized indicates a reference to a resource owned by another user
type ErrUnauthorized struct {
	Resource   string
	ResourceID uuid.UUID
	OwnerID    uuid.UUID
}

func (e ErrUnauthorized) Error() string {
	return fmt.Sprintf("owner %s is not authorized to use %s %s", e.OwnerID, e.Resource, e.ResourceID)
}

func (e ErrUnauthorized) Kind() ErrorKind { return KindAuthorization }

// Is matches any ErrUnauthorized when the target carries no resource id
func (e ErrUnauthorized) Is(target error) bool {
	t, ok := target.(ErrUnauthorized)
	if !ok {
		return false
	}
	if t.ResourceID == uuid.Nil {
		return true
	}
	return e.ResourceID == t.ResourceID
}

// PersistenceError wraps a store failure. The enclosing database transaction has
// been rolled back by the time callers see it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return "failed to " + e.Op + ": " + e.Err.Error()
}

func (e PersistenceError) Unwrap() error { return e.Err }

func (e PersistenceError) Kind() ErrorKind { return KindPersistence }

// NewPersistenceError wraps err with the failed operation name
func NewPersistenceError(op string, err error) error {
	return PersistenceError{Op: op, Err: err}
}
