package underwriter

import (
	"context"
	"strings"
	"testing"
)

func TestNodeScopedIDs(t *testing.T) {
	t.Setenv("POD_UID", "")
	t.Setenv("HOSTNAME", "My Host")
	gen, err := NodeScopedIDs("Bench")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, second := gen(), gen()
	if !strings.HasPrefix(first, "bench-my-host/") {
		t.Fatalf("unexpected id %q", first)
	}
	if first == second {
		t.Fatalf("ids must be unique, got %q twice", first)
	}
}

func TestNodeScopedIDsNameLeases(t *testing.T) {
	t.Setenv("POD_UID", "pod-7")
	gen, err := NodeScopedIDs("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	uw, _ := newTestUnderwriter(t, WithIDGenerator(gen))
	lease, err := uw.Reserve(context.Background(), docsOf("a"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !strings.HasPrefix(lease.ID(), "pod-7/") {
		t.Fatalf("unexpected lease id %q", lease.ID())
	}
}
