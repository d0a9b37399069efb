package fakestore

import (
	"context"
	"sync"
	"time"

	"github.com/suyash-sneo/underwriter/coord"
	"github.com/suyash-sneo/underwriter/coord/memory"
)

// Op names a store operation.
type Op string

const (
	OpInsert Op = "insert"
	OpTouch  Op = "touch"
	OpRemove Op = "remove"
)

// Call records one store invocation.
type Call struct {
	Op   Op
	Keys []string
}

type faults struct {
	batchErr   error
	applyFirst bool
	drop       bool
	keyErrs    map[string]error
}

// Store wraps an in-memory store with fault injection and call recording
// for tests.
type Store struct {
	mem *memory.Store

	mu     sync.Mutex
	calls  []Call
	faults map[Op]*faults
}

// New returns a fresh fault-free store.
func New() *Store {
	return &Store{
		mem:    memory.New(),
		faults: map[Op]*faults{},
	}
}

// Memory exposes the backing store for assertions and clock control.
func (s *Store) Memory() *memory.Store { return s.mem }

// Advance moves the backing store's clock forward.
func (s *Store) Advance(d time.Duration) { s.mem.Advance(d) }

// FailBatch makes op return err without touching the backing store.
func (s *Store) FailBatch(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.faultsLocked(op)
	f.batchErr, f.applyFirst = err, false
}

// FailBatchAfterApply makes op apply its writes and then return err.
func (s *Store) FailBatchAfterApply(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.faultsLocked(op)
	f.batchErr, f.applyFirst = err, true
}

// FailKeys makes op report err for keys without applying them.
func (s *Store) FailKeys(op Op, err error, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.faultsLocked(op)
	for _, k := range keys {
		f.keyErrs[k] = err
	}
}

// DropResults makes op return neither results nor an error.
func (s *Store) DropResults(op Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultsLocked(op).drop = true
}

// Reset clears every fault. Recorded calls are kept.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[Op]*faults{}
}

// Calls returns the recorded invocations in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts recorded invocations of op.
func (s *Store) CallCount(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *Store) Insert(ctx context.Context, docs []coord.Document, ttl time.Duration) ([]coord.Result, error) {
	f := s.record(OpInsert, coord.Keys(docs))
	if f.drop {
		return nil, nil
	}
	if f.batchErr != nil && !f.applyFirst {
		return nil, f.batchErr
	}
	var (
		pass   []coord.Document
		failed []coord.Result
	)
	for _, d := range docs {
		if err, ok := f.keyErrs[d.Key]; ok {
			failed = append(failed, coord.Result{Key: d.Key, Err: err})
			continue
		}
		pass = append(pass, d)
	}
	res, err := s.mem.Insert(ctx, pass, ttl)
	return finish(res, failed, err, f)
}

func (s *Store) Touch(ctx context.Context, keys []string, ttl time.Duration) ([]coord.Result, error) {
	f := s.record(OpTouch, keys)
	if f.drop {
		return nil, nil
	}
	if f.batchErr != nil && !f.applyFirst {
		return nil, f.batchErr
	}
	pass, failed := splitKeys(keys, f)
	res, err := s.mem.Touch(ctx, pass, ttl)
	return finish(res, failed, err, f)
}

func (s *Store) Remove(ctx context.Context, keys []string) ([]coord.Result, error) {
	f := s.record(OpRemove, keys)
	if f.drop {
		return nil, nil
	}
	if f.batchErr != nil && !f.applyFirst {
		return nil, f.batchErr
	}
	pass, failed := splitKeys(keys, f)
	res, err := s.mem.Remove(ctx, pass)
	return finish(res, failed, err, f)
}

func (s *Store) record(op Op, keys []string) faults {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Keys: append([]string(nil), keys...)})
	f, ok := s.faults[op]
	if !ok {
		return faults{}
	}
	out := *f
	out.keyErrs = make(map[string]error, len(f.keyErrs))
	for k, err := range f.keyErrs {
		out.keyErrs[k] = err
	}
	return out
}

func (s *Store) faultsLocked(op Op) *faults {
	f, ok := s.faults[op]
	if !ok {
		f = &faults{keyErrs: map[string]error{}}
		s.faults[op] = f
	}
	return f
}

func splitKeys(keys []string, f faults) (pass []string, failed []coord.Result) {
	for _, k := range keys {
		if err, ok := f.keyErrs[k]; ok {
			failed = append(failed, coord.Result{Key: k, Err: err})
			continue
		}
		pass = append(pass, k)
	}
	return pass, failed
}

func finish(res, failed []coord.Result, err error, f faults) ([]coord.Result, error) {
	if err != nil {
		return nil, err
	}
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return append(res, failed...), nil
}
