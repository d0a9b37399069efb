package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/suyash-sneo/underwriter/coord"
)

const defaultShards = 16

// Store is an in-memory coord.Store. Keys are spread across shards by xxhash
// so unrelated batches rarely contend on the same lock.
type Store struct {
	shards []*shard
	etags  atomic.Uint64

	clockMu sync.Mutex
	now     time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value []byte
	etag  string
	exp   time.Time // zero means no expiry
}

// Option mutates Store construction.
type Option func(*Store)

// WithShards overrides the shard count.
func WithShards(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

// New returns an empty store whose clock starts at the current time.
func New(opts ...Option) *Store {
	s := &Store{
		shards: newShards(defaultShards),
		now:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: map[string]entry{}}
	}
	return shards
}

// Advance moves the internal clock forward (useful for deterministic tests).
func (s *Store) Advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = s.now.Add(d)
}

func (s *Store) clock() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.now
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *Store) nextETag() string {
	return strconv.FormatUint(s.etags.Add(1), 36)
}

func (s *Store) Insert(_ context.Context, docs []coord.Document, ttl time.Duration) ([]coord.Result, error) {
	now := s.clock()
	results := make([]coord.Result, len(docs))
	for i, d := range docs {
		results[i] = coord.Result{Key: d.Key}
		sh := s.shardFor(d.Key)
		sh.mu.Lock()
		if e, ok := sh.entries[d.Key]; ok && !e.expired(now) {
			sh.mu.Unlock()
			results[i].Collision = true
			continue
		}
		e := entry{value: append([]byte(nil), d.Value...), etag: s.nextETag()}
		if ttl > 0 {
			e.exp = now.Add(ttl)
		}
		sh.entries[d.Key] = e
		sh.mu.Unlock()
		results[i].OK = true
		results[i].ETag = e.etag
	}
	return results, nil
}

func (s *Store) Touch(_ context.Context, keys []string, ttl time.Duration) ([]coord.Result, error) {
	now := s.clock()
	results := make([]coord.Result, len(keys))
	for i, k := range keys {
		results[i] = coord.Result{Key: k}
		sh := s.shardFor(k)
		sh.mu.Lock()
		e, ok := sh.entries[k]
		if !ok || e.expired(now) {
			delete(sh.entries, k)
			sh.mu.Unlock()
			results[i].Missing = true
			continue
		}
		e.etag = s.nextETag()
		e.exp = time.Time{}
		if ttl > 0 {
			e.exp = now.Add(ttl)
		}
		sh.entries[k] = e
		sh.mu.Unlock()
		results[i].OK = true
		results[i].ETag = e.etag
	}
	return results, nil
}

func (s *Store) Remove(_ context.Context, keys []string) ([]coord.Result, error) {
	results := make([]coord.Result, len(keys))
	for i, k := range keys {
		sh := s.shardFor(k)
		sh.mu.Lock()
		delete(sh.entries, k)
		sh.mu.Unlock()
		results[i] = coord.Result{Key: k, OK: true}
	}
	return results, nil
}

// Get returns the live value and etag for key.
func (s *Store) Get(key string) (value []byte, etag string, ok bool) {
	now := s.clock()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok || e.expired(now) {
		return nil, "", false
	}
	return append([]byte(nil), e.value...), e.etag, true
}

// Permanent reports whether key is live and has no expiry.
func (s *Store) Permanent(key string) bool {
	now := s.clock()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	return ok && !e.expired(now) && e.exp.IsZero()
}

// Len counts live entries.
func (s *Store) Len() int {
	now := s.clock()
	var n int
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if !e.expired(now) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && !e.exp.After(now)
}
