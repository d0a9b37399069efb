package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/suyash-sneo/underwriter/coord"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInsertTouchRemove(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()

	res, err := store.Insert(ctx, []coord.Document{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}, time.Second)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	for _, r := range res {
		if !r.OK || r.ETag == "" {
			t.Fatalf("expected success, got %+v", r)
		}
	}

	res, _ = store.Insert(ctx, []coord.Document{{Key: "a", Value: []byte("x")}}, time.Second)
	if !res[0].Collision {
		t.Fatalf("expected collision, got %+v", res[0])
	}

	touched, err := store.Touch(ctx, []string{"a"}, 0)
	if err != nil || !touched[0].OK {
		t.Fatalf("touch: %+v %v", touched, err)
	}
	clock.Advance(time.Hour)

	val, etag, ok, err := store.Get("a")
	if err != nil || !ok || string(val) != "1" || etag != touched[0].ETag {
		t.Fatalf("expected permanent a, got val=%s etag=%s ok=%v err=%v", val, etag, ok, err)
	}
	if _, _, ok, _ := store.Get("b"); ok {
		t.Fatalf("expected b to have expired")
	}

	removed, err := store.Remove(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, r := range removed {
		if !r.OK {
			t.Fatalf("expected idempotent remove, got %+v", r)
		}
	}
}

func TestTouchExpiredIsMissing(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()

	_, _ = store.Insert(ctx, []coord.Document{{Key: "a"}}, time.Second)
	clock.Advance(time.Second)
	res, err := store.Touch(ctx, []string{"a"}, 0)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !res[0].Missing {
		t.Fatalf("expected missing, got %+v", res[0])
	}
}

func TestSweep(t *testing.T) {
	store, clock := openStore(t)
	ctx := context.Background()

	_, _ = store.Insert(ctx, []coord.Document{{Key: "a"}, {Key: "b"}}, time.Second)
	_, _ = store.Insert(ctx, []coord.Document{{Key: "c"}}, 0)
	clock.Advance(2 * time.Second)

	n, err := store.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if _, _, ok, _ := store.Get("c"); !ok {
		t.Fatalf("expected permanent c to survive sweep")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := record{exp: time.Unix(10, 5), etag: "tag", value: []byte("payload")}
	got, err := decode(rec.encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.exp.Equal(rec.exp) || got.etag != "tag" || string(got.value) != "payload" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if _, err := decode([]byte{1, 2}); err == nil {
		t.Fatalf("expected corrupt record error")
	}
}

func openStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store, err := Open(filepath.Join(t.TempDir(), "uw.db"), WithNow(clock.Now))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}
