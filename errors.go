package underwriter

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures raised by reservations and leases.
type Kind int

const (
	// KindCollision means one or more keys already existed at insert time.
	KindCollision Kind = iota + 1
	// KindExpired means the reservation's TTL lapsed before confirm landed.
	KindExpired
	// KindCancelled means the lease was already cancelled.
	KindCancelled
	// KindConfirmed means the lease was already confirmed.
	KindConfirmed
	// KindStore means the store failed outside the collision/missing cases.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindCollision:
		return "collision"
	case KindExpired:
		return "expired"
	case KindCancelled:
		return "cancelled"
	case KindConfirmed:
		return "confirmed"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is the single error type crossing the underwriter boundary for
// store interactions and lease state checks.
type Error struct {
	Kind Kind
	// Keys lists the colliding keys for KindCollision.
	Keys []string
	// Err is the underlying store error for KindStore.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCollision:
		if len(e.Keys) == 0 {
			return "underwriter: key collision"
		}
		return "underwriter: key collision on " + strings.Join(e.Keys, ", ")
	case KindExpired:
		return "underwriter: lease expired"
	case KindCancelled:
		return "underwriter: lease already cancelled"
	case KindConfirmed:
		return "underwriter: lease already confirmed"
	case KindStore:
		if e.Err == nil {
			return "underwriter: store error"
		}
		return fmt.Sprintf("underwriter: store error: %v", e.Err)
	default:
		return "underwriter: unknown error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of Keys or Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrCollision = &Error{Kind: KindCollision}
	ErrExpired   = &Error{Kind: KindExpired}
	ErrCancelled = &Error{Kind: KindCancelled}
	ErrConfirmed = &Error{Kind: KindConfirmed}
	ErrStore     = &Error{Kind: KindStore}
)

// ErrNoResult is wrapped in a store error when the adapter returns neither a
// result nor an error.
var ErrNoResult = errors.New("store returned no result")

// Validation errors. These are returned before any store call.
var (
	ErrEmptyBatch   = errors.New("underwriter: no documents or keys given")
	ErrEmptyKey     = errors.New("underwriter: empty key")
	ErrDuplicateKey = errors.New("underwriter: duplicate key")
	ErrNotMapping   = errors.New("underwriter: documents must be a map with string keys")
)

// IsKnown reports whether err is already part of the taxonomy.
func IsKnown(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// KindOf returns the taxonomy kind of err, or 0 if it is not known.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func collisionError(keys []string) error {
	return &Error{Kind: KindCollision, Keys: keys}
}

// storeError wraps err unless it is already classified.
func storeError(err error) error {
	if err == nil {
		err = ErrNoResult
	}
	if IsKnown(err) {
		return err
	}
	return &Error{Kind: KindStore, Err: err}
}
