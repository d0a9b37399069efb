package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/suyash-sneo/underwriter/coord"
)

const (
	defaultBucket = "documents"
	expiryLen     = 8
)

// ErrCorruptRecord indicates a stored record could not be decoded.
var ErrCorruptRecord = errors.New("bolt store: corrupt record")

// Store implements coord.Store on a local bbolt file. Expiry is stored with
// each record; expired records count as absent.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	now    func() time.Time
}

// Option mutates Store construction.
type Option func(*Store)

// WithBucket overrides the bucket documents are kept in.
func WithBucket(name string) Option {
	return func(s *Store) { s.bucket = []byte(name) }
}

// WithNow sets a custom clock (tests).
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	s := &Store{db: db, bucket: []byte(defaultBucket), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, docs []coord.Document, ttl time.Duration) ([]coord.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	results := make([]coord.Result, len(docs))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for i, d := range docs {
			results[i] = coord.Result{Key: d.Key}
			if raw := b.Get([]byte(d.Key)); raw != nil {
				rec, err := decode(raw)
				if err != nil {
					results[i].Err = err
					continue
				}
				if !rec.expired(now) {
					results[i].Collision = true
					continue
				}
			}
			rec := record{value: d.Value, etag: uuid.NewString()}
			if ttl > 0 {
				rec.exp = now.Add(ttl)
			}
			if err := b.Put([]byte(d.Key), rec.encode()); err != nil {
				results[i].Err = err
				continue
			}
			results[i].OK = true
			results[i].ETag = rec.etag
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) Touch(ctx context.Context, keys []string, ttl time.Duration) ([]coord.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	results := make([]coord.Result, len(keys))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for i, k := range keys {
			results[i] = coord.Result{Key: k}
			raw := b.Get([]byte(k))
			if raw == nil {
				results[i].Missing = true
				continue
			}
			rec, err := decode(raw)
			if err != nil {
				results[i].Err = err
				continue
			}
			if rec.expired(now) {
				if err := b.Delete([]byte(k)); err != nil {
					results[i].Err = err
					continue
				}
				results[i].Missing = true
				continue
			}
			rec.etag = uuid.NewString()
			rec.exp = time.Time{}
			if ttl > 0 {
				rec.exp = now.Add(ttl)
			}
			if err := b.Put([]byte(k), rec.encode()); err != nil {
				results[i].Err = err
				continue
			}
			results[i].OK = true
			results[i].ETag = rec.etag
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) Remove(ctx context.Context, keys []string) ([]coord.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]coord.Result, len(keys))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for i, k := range keys {
			results[i] = coord.Result{Key: k}
			if err := b.Delete([]byte(k)); err != nil {
				results[i].Err = err
				continue
			}
			results[i].OK = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns the live value and etag for key.
func (s *Store) Get(key string) (value []byte, etag string, ok bool, err error) {
	now := s.now()
	err = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		rec, err := decode(raw)
		if err != nil {
			return err
		}
		if rec.expired(now) {
			return nil
		}
		value, etag, ok = rec.value, rec.etag, true
		return nil
	})
	return value, etag, ok, err
}

// Sweep deletes expired records and returns how many were removed.
func (s *Store) Sweep() (int, error) {
	now := s.now()
	var removed int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decode(v)
			if err != nil || rec.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

type record struct {
	exp   time.Time
	etag  string
	value []byte
}

func (r record) expired(now time.Time) bool {
	return !r.exp.IsZero() && !r.exp.After(now)
}

// encode lays a record out as expiry (unix nanos, 0 = none), uvarint etag
// length, etag, value.
func (r record) encode() []byte {
	buf := make([]byte, expiryLen, expiryLen+binary.MaxVarintLen64+len(r.etag)+len(r.value))
	if !r.exp.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(r.exp.UnixNano()))
	}
	buf = binary.AppendUvarint(buf, uint64(len(r.etag)))
	buf = append(buf, r.etag...)
	return append(buf, r.value...)
}

// decode copies out of raw, which bbolt only guarantees for the life of the
// transaction.
func decode(raw []byte) (record, error) {
	if len(raw) < expiryLen {
		return record{}, ErrCorruptRecord
	}
	var rec record
	if ns := binary.BigEndian.Uint64(raw[:expiryLen]); ns != 0 {
		rec.exp = time.Unix(0, int64(ns))
	}
	n, w := binary.Uvarint(raw[expiryLen:])
	if w <= 0 || uint64(len(raw)-expiryLen-w) < n {
		return record{}, ErrCorruptRecord
	}
	start := expiryLen + w
	rec.etag = string(raw[start : start+int(n)])
	rec.value = append([]byte(nil), raw[start+int(n):]...)
	return rec, nil
}
