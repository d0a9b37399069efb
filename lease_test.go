package underwriter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/suyash-sneo/underwriter/internal/fakestore"
)

func TestLeaseCancelClearsETags(t *testing.T) {
	uw, store := newTestUnderwriter(t)
	ctx := context.Background()
	lease := mustReserve(t, uw, "a", "b")

	if err := lease.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !lease.IsCancelled() || lease.IsConfirmed() || lease.IsExpired() {
		t.Fatalf("expected cancelled only, got %v", lease.State())
	}
	for k, e := range lease.Documents() {
		if e.ETag != "" {
			t.Fatalf("expected etag cleared on %s", k)
		}
	}
	if store.Memory().Len() != 0 {
		t.Fatalf("expected keys removed from store")
	}
}

func TestLeaseCancelStaysCancelledWhenRemoveFails(t *testing.T) {
	uw, store := newTestUnderwriter(t)
	lease := mustReserve(t, uw, "a")
	store.FailBatch(fakestore.OpRemove, errBoom)

	err := lease.Cancel(context.Background())
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if !lease.IsCancelled() {
		t.Fatalf("cancellation must stick, got %v", lease.State())
	}
	if lease.Documents()["a"].ETag != "" {
		t.Fatalf("expected etag cleared")
	}
}

func TestLeaseConfirmUpdatesETags(t *testing.T) {
	uw, store := newTestUnderwriter(t)
	lease := mustReserve(t, uw, "a", "b")
	before := lease.Documents()

	if err := lease.Confirm(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !lease.IsConfirmed() {
		t.Fatalf("expected confirmed, got %v", lease.State())
	}
	for k, e := range lease.Documents() {
		_, etag, ok := store.Memory().Get(k)
		if !ok || e.ETag != etag {
			t.Fatalf("expected %s etag %s to match store %s", k, e.ETag, etag)
		}
		if e.ETag == before[k].ETag {
			t.Fatalf("expected %s etag to change on confirm", k)
		}
		if !store.Memory().Permanent(k) {
			t.Fatalf("expected %s to be permanent", k)
		}
	}
}

func TestLeaseConfirmExpired(t *testing.T) {
	uw, store := newTestUnderwriter(t)
	ctx := context.Background()
	lease := mustReserve(t, uw, "a", "b")
	_, _ = store.Memory().Remove(ctx, []string{"b"})

	err := lease.Confirm(ctx)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if !lease.IsExpired() || lease.IsConfirmed() {
		t.Fatalf("expected expired only, got %v", lease.State())
	}
	for k, e := range lease.Documents() {
		if e.ETag != "" {
			t.Fatalf("expected etag cleared on %s", k)
		}
	}
	if store.Memory().Len() != 0 {
		t.Fatalf("expected no keys left")
	}
}

func TestLeaseConfirmStoreFailureEndsExpired(t *testing.T) {
	uw, store := newTestUnderwriter(t)
	lease := mustReserve(t, uw, "a")
	store.FailBatch(fakestore.OpTouch, errBoom)

	err := lease.Confirm(context.Background())
	if !errors.Is(err, ErrStore) || !errors.Is(err, errBoom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if !lease.IsExpired() {
		t.Fatalf("expected expired after failed confirm, got %v", lease.State())
	}
}

func TestTerminalLeaseRejectsFurtherCalls(t *testing.T) {
	cases := []struct {
		name   string
		finish func(*testing.T, *Lease, *fakestore.Store)
		want   error
	}{
		{
			name: "cancelled",
			finish: func(t *testing.T, l *Lease, _ *fakestore.Store) {
				if err := l.Cancel(context.Background()); err != nil {
					t.Fatalf("cancel: %v", err)
				}
			},
			want: ErrCancelled,
		},
		{
			name: "confirmed",
			finish: func(t *testing.T, l *Lease, _ *fakestore.Store) {
				if err := l.Confirm(context.Background()); err != nil {
					t.Fatalf("confirm: %v", err)
				}
			},
			want: ErrConfirmed,
		},
		{
			name: "expired",
			finish: func(t *testing.T, l *Lease, s *fakestore.Store) {
				_, _ = s.Memory().Remove(context.Background(), []string{"a"})
				if err := l.Confirm(context.Background()); !errors.Is(err, ErrExpired) {
					t.Fatalf("confirm: %v", err)
				}
			},
			want: ErrExpired,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uw, store := newTestUnderwriter(t)
			lease := mustReserve(t, uw, "a")
			tc.finish(t, lease, store)
			calls := len(store.Calls())

			if err := lease.Cancel(context.Background()); !errors.Is(err, tc.want) {
				t.Fatalf("cancel: expected %v, got %v", tc.want, err)
			}
			if err := lease.Confirm(context.Background()); !errors.Is(err, tc.want) {
				t.Fatalf("confirm: expected %v, got %v", tc.want, err)
			}
			if got := len(store.Calls()); got != calls {
				t.Fatalf("expected no further store calls, got %d more", got-calls)
			}
		})
	}
}

func TestLeaseConcurrentTransitionsResolveOnce(t *testing.T) {
	uw, store := newTestUnderwriter(t)
	lease := mustReserve(t, uw, "a", "b")

	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			var err error
			if i%2 == 0 {
				err = lease.Confirm(context.Background())
			} else {
				err = lease.Cancel(context.Background())
			}
			if err == nil {
				wins.Add(1)
				return nil
			}
			if !errors.Is(err, ErrCancelled) && !errors.Is(err, ErrConfirmed) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one transition, got %d", wins.Load())
	}
	if lease.State() == StatePending {
		t.Fatalf("lease must leave pending")
	}
	if n := store.CallCount(fakestore.OpTouch) + store.CallCount(fakestore.OpRemove); n != 1 {
		t.Fatalf("expected a single store transition call, got %d", n)
	}
}

func TestLeaseDocumentsIsACopy(t *testing.T) {
	uw, _ := newTestUnderwriter(t)
	lease := mustReserve(t, uw, "a")

	docs := lease.Documents()
	docs["a"].Value[0] = 'X'
	delete(docs, "a")
	if got := lease.Documents()["a"]; string(got.Value) != "v-a" {
		t.Fatalf("lease documents mutated through copy: %q", got.Value)
	}
	if keys := lease.Keys(); len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestLeaseIDsAreDistinct(t *testing.T) {
	uw, _ := newTestUnderwriter(t)
	a := mustReserve(t, uw, "a")
	b := mustReserve(t, uw, "b")
	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("expected distinct lease ids, got %q and %q", a.ID(), b.ID())
	}
}

func mustReserve(t *testing.T, uw *Underwriter, keys ...string) *Lease {
	t.Helper()
	lease, err := uw.Reserve(context.Background(), docsOf(keys...))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return lease
}
