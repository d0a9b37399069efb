package underwriter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorsMatchSentinelsByKind(t *testing.T) {
	err := collisionError([]string{"a", "b"})
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("expected collision to match ErrCollision")
	}
	if errors.Is(err, ErrStore) {
		t.Fatalf("collision must not match ErrStore")
	}
	if got := err.Error(); got != "underwriter: key collision on a, b" {
		t.Fatalf("unexpected message %q", got)
	}

	wrapped := fmt.Errorf("reserve: %w", err)
	var uerr *Error
	if !errors.As(wrapped, &uerr) || len(uerr.Keys) != 2 {
		t.Fatalf("expected to recover keys through wrapping, got %v", uerr)
	}
}

func TestStoreErrorWrapsUnknown(t *testing.T) {
	base := errors.New("connection reset")
	err := storeError(base)
	if !errors.Is(err, ErrStore) || !errors.Is(err, base) {
		t.Fatalf("expected store error wrapping base, got %v", err)
	}
	if KindOf(err) != KindStore {
		t.Fatalf("expected KindStore, got %v", KindOf(err))
	}
}

func TestStoreErrorKeepsKnown(t *testing.T) {
	if err := storeError(ErrExpired); err != ErrExpired {
		t.Fatalf("known errors must pass through, got %v", err)
	}
}

func TestStoreErrorNilMeansNoResult(t *testing.T) {
	err := storeError(nil)
	if !errors.Is(err, ErrNoResult) || !errors.Is(err, ErrStore) {
		t.Fatalf("expected no-result store error, got %v", err)
	}
}

func TestIsKnown(t *testing.T) {
	if IsKnown(context.Canceled) {
		t.Fatalf("context errors are not part of the taxonomy")
	}
	for _, err := range []error{ErrCollision, ErrExpired, ErrCancelled, ErrConfirmed, ErrStore} {
		if !IsKnown(err) {
			t.Fatalf("expected %v to be known", err)
		}
	}
	if IsKnown(ErrEmptyBatch) {
		t.Fatalf("validation errors are not part of the taxonomy")
	}
}
