package underwriter

import (
	"context"
	"sort"
	"sync"
)

// Lease is a handle over a batch of reserved keys. It starts pending and
// reaches exactly one of cancelled, confirmed or expired. Transitions are
// serialized per Lease, so concurrent Cancel/Confirm calls are safe: the
// first caller wins and the rest see the resulting state error.
type Lease struct {
	id string
	uw *Underwriter

	mu    sync.Mutex
	state State
	docs  map[string]*Entry
}

func newLease(id string, uw *Underwriter, docs map[string]*Entry) *Lease {
	return &Lease{id: id, uw: uw, state: StatePending, docs: docs}
}

// ID identifies the lease in logs.
func (l *Lease) ID() string { return l.id }

// State returns the current lifecycle state.
func (l *Lease) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lease) IsCancelled() bool { return l.State() == StateCancelled }
func (l *Lease) IsConfirmed() bool { return l.State() == StateConfirmed }
func (l *Lease) IsExpired() bool   { return l.State() == StateExpired }

// Documents returns a copy of the reserved documents keyed by store key.
func (l *Lease) Documents() map[string]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Entry, len(l.docs))
	for k, e := range l.docs {
		out[k] = Entry{Value: append([]byte(nil), e.Value...), ETag: e.ETag}
	}
	return out
}

// Keys returns the reserved keys in sorted order.
func (l *Lease) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keysLocked()
}

// Cancel releases the reservation. The lease is marked cancelled before the
// store is contacted and stays cancelled even if removing the keys fails; in
// that case the store error is returned.
func (l *Lease) Cancel(ctx context.Context) error {
	l.mu.Lock()
	if err := l.checkState(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.state = StateCancelled
	l.clearETags()
	keys := l.keysLocked()
	l.mu.Unlock()

	if err := l.uw.Cancel(ctx, keys); err != nil {
		l.uw.logger.Warn("lease cancel cleanup failed", Field{Key: "lease", Value: l.id}, Field{Key: "err", Value: err})
		return err
	}
	l.uw.logger.Debug("lease cancelled", Field{Key: "lease", Value: l.id})
	return nil
}

// Confirm makes every reserved key permanent. On success each entry carries
// the etag returned by the store. On any failure the lease ends expired, all
// etags are cleared, and the expired or store error is returned.
func (l *Lease) Confirm(ctx context.Context) error {
	l.mu.Lock()
	if err := l.checkState(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.state = StateConfirmed
	keys := l.keysLocked()
	l.mu.Unlock()

	etags, err := l.uw.Confirm(ctx, keys)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.clearETags()
		l.state = StateExpired
		l.uw.logger.Debug("lease expired on confirm", Field{Key: "lease", Value: l.id}, Field{Key: "err", Value: err})
		return err
	}
	for k, etag := range etags {
		if e, ok := l.docs[k]; ok {
			e.ETag = etag
		}
	}
	l.uw.logger.Debug("lease confirmed", Field{Key: "lease", Value: l.id})
	return nil
}

// checkState is evaluated under l.mu, cancelled first, then confirmed, then
// expired.
func (l *Lease) checkState() error {
	switch l.state {
	case StateCancelled:
		return &Error{Kind: KindCancelled}
	case StateConfirmed:
		return &Error{Kind: KindConfirmed}
	case StateExpired:
		return &Error{Kind: KindExpired}
	}
	return nil
}

func (l *Lease) clearETags() {
	for _, e := range l.docs {
		e.ETag = ""
	}
}

func (l *Lease) keysLocked() []string {
	keys := make([]string, 0, len(l.docs))
	for k := range l.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
