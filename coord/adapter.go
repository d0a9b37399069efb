package coord

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedAdapter indicates an Adapter operation has neither a blocking
// nor a future-style implementation.
var ErrMalformedAdapter = errors.New("coord: malformed adapter")

// Adapter builds a Store out of plain functions. Each operation may be given
// in blocking form, future form, or both; the blocking form wins when both
// are set.
type Adapter struct {
	Insert func(ctx context.Context, docs []Document, ttl time.Duration) ([]Result, error)
	Touch  func(ctx context.Context, keys []string, ttl time.Duration) ([]Result, error)
	Remove func(ctx context.Context, keys []string) ([]Result, error)

	InsertAsync func(ctx context.Context, docs []Document, ttl time.Duration) <-chan Outcome
	TouchAsync  func(ctx context.Context, keys []string, ttl time.Duration) <-chan Outcome
	RemoveAsync func(ctx context.Context, keys []string) <-chan Outcome
}

// Store validates the adapter and returns a blocking Store over it.
func (a Adapter) Store() (Store, error) {
	if a.Insert == nil && a.InsertAsync == nil {
		return nil, fmt.Errorf("%w: insert not provided", ErrMalformedAdapter)
	}
	if a.Touch == nil && a.TouchAsync == nil {
		return nil, fmt.Errorf("%w: touch not provided", ErrMalformedAdapter)
	}
	if a.Remove == nil && a.RemoveAsync == nil {
		return nil, fmt.Errorf("%w: remove not provided", ErrMalformedAdapter)
	}
	return adapterStore{a: a}, nil
}

type adapterStore struct {
	a Adapter
}

func (s adapterStore) Insert(ctx context.Context, docs []Document, ttl time.Duration) ([]Result, error) {
	if s.a.Insert != nil {
		return s.a.Insert(ctx, docs, ttl)
	}
	return await(ctx, s.a.InsertAsync(ctx, docs, ttl))
}

func (s adapterStore) Touch(ctx context.Context, keys []string, ttl time.Duration) ([]Result, error) {
	if s.a.Touch != nil {
		return s.a.Touch(ctx, keys, ttl)
	}
	return await(ctx, s.a.TouchAsync(ctx, keys, ttl))
}

func (s adapterStore) Remove(ctx context.Context, keys []string) ([]Result, error) {
	if s.a.Remove != nil {
		return s.a.Remove(ctx, keys)
	}
	return await(ctx, s.a.RemoveAsync(ctx, keys))
}

// await blocks on a future-style completion. A nil or closed channel yields
// no results and no error, which callers treat as a missing result.
func await(ctx context.Context, ch <-chan Outcome) ([]Result, error) {
	if ch == nil {
		return nil, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out, ok := <-ch:
		if !ok {
			return nil, nil
		}
		return out.Results, out.Err
	}
}
