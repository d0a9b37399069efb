package underwriter

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/suyash-sneo/underwriter/coord"
)

// Option mutates Underwriter construction.
type Option func(*Underwriter)

// WithIDGenerator overrides how lease identifiers are minted.
func WithIDGenerator(gen func() string) Option {
	return func(u *Underwriter) { u.newID = gen }
}

// Underwriter reserves batches of keys in a coord.Store and rolls back the
// keys it touched whenever a batch only partly succeeds. It keeps no
// per-lease state and is safe for concurrent use.
type Underwriter struct {
	cfg     Config
	store   coord.Store
	logger  Logger
	metrics Metrics
	newID   func() string
}

// NewUnderwriter constructs an Underwriter over store.
func NewUnderwriter(cfg Config, store coord.Store, logger Logger, metrics Metrics, opts ...Option) (*Underwriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if isNil(store) {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = NopLogger()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	u := &Underwriter{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		metrics: metrics,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Config returns the configuration the Underwriter was built with.
func (u *Underwriter) Config() Config {
	return u.cfg
}

// Reserve inserts every document with the configured TTL. Either all keys
// are reserved and a pending Lease is returned, or the keys this call wrote
// are removed again and the failure is reported: a collision error naming
// the colliding keys when that was the only problem, a store error
// otherwise.
func (u *Underwriter) Reserve(ctx context.Context, docs map[string][]byte) (*Lease, error) {
	batch, err := toDocuments(docs)
	if err != nil {
		return nil, err
	}
	keys := coord.Keys(batch)

	start := time.Now()
	results, err := u.store.Insert(ctx, batch, u.cfg.TTL)
	u.observe("insert", start)
	if err != nil || len(results) == 0 {
		// Nothing says which keys landed, so every submitted key is suspect.
		u.rollback(ctx, "reserve", keys)
		u.outcome("reserve", "store_error")
		return nil, storeError(err)
	}

	byKey := indexResults(results)
	staged := make(map[string]*Entry, len(batch))
	var (
		reserved []string
		collided []string
		internal error
	)
	for _, d := range batch {
		r, ok := byKey[d.Key]
		switch {
		case !ok:
			if internal == nil {
				internal = fmt.Errorf("insert %s: %w", d.Key, ErrNoResult)
			}
		case r.OK:
			reserved = append(reserved, d.Key)
			staged[d.Key] = &Entry{Value: d.Value, ETag: r.ETag}
		case r.Collision:
			collided = append(collided, d.Key)
		default:
			if internal == nil {
				internal = resultError("insert", r)
			}
		}
	}

	if len(reserved) < len(batch) {
		u.rollback(ctx, "reserve", reserved)
		if internal == nil {
			u.outcome("reserve", "collision")
			u.metrics.IncCounter("underwriter_collided_keys_total", float64(len(collided)))
			return nil, collisionError(collided)
		}
		u.outcome("reserve", "store_error")
		return nil, storeError(internal)
	}

	u.outcome("reserve", "ok")
	lease := newLease(u.newID(), u, staged)
	u.logger.Debug("lease reserved", Field{Key: "lease", Value: lease.id}, Field{Key: "keys", Value: keys})
	return lease, nil
}

// Confirm strips expiry from keys and returns their new etags. It is all or
// nothing: if any key cannot be touched, the keys that were touched are
// removed and the call fails with an expired error when every failure was a
// missing key, or a store error otherwise.
func (u *Underwriter) Confirm(ctx context.Context, keys []string) (map[string]string, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := u.store.Touch(ctx, keys, 0)
	u.observe("touch", start)
	if err != nil || len(results) == 0 {
		u.rollback(ctx, "confirm", keys)
		u.outcome("confirm", "store_error")
		return nil, storeError(err)
	}

	byKey := indexResults(results)
	etags := make(map[string]string, len(keys))
	var (
		touched  []string
		internal error
	)
	for _, k := range keys {
		r, ok := byKey[k]
		switch {
		case !ok:
			if internal == nil {
				internal = fmt.Errorf("touch %s: %w", k, ErrNoResult)
			}
		case r.OK:
			touched = append(touched, k)
			etags[k] = r.ETag
		case r.Missing:
		default:
			if internal == nil {
				internal = resultError("touch", r)
			}
		}
	}

	if len(touched) < len(keys) {
		u.rollback(ctx, "confirm", touched)
		if internal == nil {
			u.outcome("confirm", "expired")
			return nil, &Error{Kind: KindExpired}
		}
		u.outcome("confirm", "store_error")
		return nil, storeError(internal)
	}
	u.outcome("confirm", "ok")
	return etags, nil
}

// Cancel removes keys. Keys that no longer exist count as removed.
func (u *Underwriter) Cancel(ctx context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}

	start := time.Now()
	results, err := u.store.Remove(ctx, keys)
	u.observe("remove", start)
	if err != nil {
		u.outcome("cancel", "store_error")
		return storeError(err)
	}
	for _, r := range results {
		if !r.OK {
			u.outcome("cancel", "store_error")
			return storeError(resultError("remove", r))
		}
	}
	u.outcome("cancel", "ok")
	return nil
}

// rollback removes keys on a best-effort basis. Failures are logged, never
// returned: the store TTL is the backstop.
func (u *Underwriter) rollback(ctx context.Context, op string, keys []string) {
	if len(keys) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.RollbackTimeout)
	defer cancel()

	start := time.Now()
	results, err := u.store.Remove(rctx, keys)
	u.observe("remove", start)
	u.metrics.IncCounter("underwriter_rollback_keys_total", float64(len(keys)), Label{Name: "op", Value: op})
	if err != nil {
		u.logger.Warn("rollback failed", Field{Key: "op", Value: op}, Field{Key: "keys", Value: keys}, Field{Key: "err", Value: err})
		return
	}
	for _, r := range results {
		if !r.OK {
			u.logger.Warn("rollback key failed", Field{Key: "op", Value: op}, Field{Key: "key", Value: r.Key}, Field{Key: "err", Value: r.Err})
		}
	}
}

func (u *Underwriter) observe(op string, start time.Time) {
	u.metrics.ObserveHistogram("underwriter_store_seconds", time.Since(start).Seconds(), Label{Name: "op", Value: op})
}

func (u *Underwriter) outcome(op, result string) {
	u.metrics.IncCounter("underwriter_operations_total", 1, Label{Name: "op", Value: op}, Label{Name: "result", Value: result})
}

// isNil also catches a nil pointer wrapped in a non-nil interface.
func isNil(store coord.Store) bool {
	if store == nil {
		return true
	}
	v := reflect.ValueOf(store)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func indexResults(results []coord.Result) map[string]coord.Result {
	out := make(map[string]coord.Result, len(results))
	for _, r := range results {
		out[r.Key] = r
	}
	return out
}

func resultError(op string, r coord.Result) error {
	if r.Err != nil {
		return fmt.Errorf("%s %s: %w", op, r.Key, r.Err)
	}
	return fmt.Errorf("%s %s: failed", op, r.Key)
}
