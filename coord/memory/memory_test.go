package memory

import (
	"context"
	"testing"
	"time"

	"github.com/suyash-sneo/underwriter/coord"
)

func TestInsertCollidesWithLiveKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	res, err := s.Insert(ctx, []coord.Document{{Key: "a", Value: []byte("1")}}, time.Second)
	if err != nil || !res[0].OK || res[0].ETag == "" {
		t.Fatalf("first insert failed: %+v %v", res, err)
	}
	res, err = s.Insert(ctx, []coord.Document{{Key: "a", Value: []byte("2")}, {Key: "b", Value: []byte("3")}}, time.Second)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if !res[0].Collision || res[0].OK {
		t.Fatalf("expected collision on a, got %+v", res[0])
	}
	if !res[1].OK {
		t.Fatalf("expected b to succeed, got %+v", res[1])
	}
	if v, _, _ := s.Get("a"); string(v) != "1" {
		t.Fatalf("collision must not overwrite, got %s", v)
	}
}

func TestExpiredKeyCanBeReinserted(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Insert(ctx, []coord.Document{{Key: "a"}}, time.Second); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Advance(2 * time.Second)
	if s.Len() != 0 {
		t.Fatalf("expected no live keys after expiry")
	}
	res, _ := s.Insert(ctx, []coord.Document{{Key: "a"}}, time.Second)
	if !res[0].OK {
		t.Fatalf("expected reinsert after expiry, got %+v", res[0])
	}
}

func TestTouchStripsExpiry(t *testing.T) {
	s := New(WithShards(2))
	ctx := context.Background()

	ins, _ := s.Insert(ctx, []coord.Document{{Key: "a"}}, time.Second)
	res, err := s.Touch(ctx, []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !res[0].OK || res[0].ETag == ins[0].ETag {
		t.Fatalf("expected new etag, got %+v", res[0])
	}
	if !res[1].Missing {
		t.Fatalf("expected b missing, got %+v", res[1])
	}
	s.Advance(time.Hour)
	if !s.Permanent("a") {
		t.Fatalf("expected a to be permanent")
	}
}

func TestTouchAfterExpiryIsMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, _ = s.Insert(ctx, []coord.Document{{Key: "a"}}, time.Second)
	s.Advance(time.Second)
	res, _ := s.Touch(ctx, []string{"a"}, 0)
	if !res[0].Missing {
		t.Fatalf("expected missing after expiry, got %+v", res[0])
	}
}

func TestRemoveAbsentKeySucceeds(t *testing.T) {
	s := New()
	res, err := s.Remove(context.Background(), []string{"nope"})
	if err != nil || !res[0].OK {
		t.Fatalf("expected idempotent remove, got %+v %v", res, err)
	}
}
