package fakestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/suyash-sneo/underwriter/coord"
)

func TestFailKeysConcurrentWithCalls(t *testing.T) {
	s := New()
	errKey := errors.New("key failed")
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.FailKeys(OpInsert, errKey, fmt.Sprintf("k%d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			docs := []coord.Document{{Key: fmt.Sprintf("k%d", i)}, {Key: "other"}}
			if _, err := s.Insert(ctx, docs, time.Minute); err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			_, _ = s.Remove(ctx, []string{"other"})
		}
	}()
	wg.Wait()

	res, err := s.Insert(ctx, []coord.Document{{Key: "k0"}}, time.Minute)
	if err != nil || len(res) != 1 || !errors.Is(res[0].Err, errKey) {
		t.Fatalf("expected injected key error, got %+v %v", res, err)
	}
}

func TestRecordedFaultsAreSnapshots(t *testing.T) {
	s := New()
	errKey := errors.New("key failed")
	s.FailKeys(OpTouch, errKey, "a")

	f := s.record(OpTouch, []string{"a"})
	s.FailKeys(OpTouch, errKey, "b")
	if _, ok := f.keyErrs["b"]; ok {
		t.Fatalf("recorded faults must not see later changes")
	}
	if n := s.CallCount(OpTouch); n != 1 {
		t.Fatalf("expected one recorded call, got %d", n)
	}
}
