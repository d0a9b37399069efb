package coord

import (
	"context"
	"time"
)

// Store defines the key-value backend the underwriter reserves keys in.
//
// Insert must report a key that already exists as a per-key Collision result,
// never as a batch error. A batch error is reserved for infrastructure
// failure. Remove is idempotent: removing an absent key succeeds. Touch with a
// zero ttl strips expiry; touching an absent key reports Missing.
type Store interface {
	Insert(ctx context.Context, docs []Document, ttl time.Duration) ([]Result, error)
	Touch(ctx context.Context, keys []string, ttl time.Duration) ([]Result, error)
	Remove(ctx context.Context, keys []string) ([]Result, error)
}

// Document is a single key/value pair submitted for insertion.
type Document struct {
	Key   string
	Value []byte
}

// Result is the per-key outcome of a batch call.
type Result struct {
	Key       string
	OK        bool
	ETag      string
	Collision bool
	Missing   bool
	Err       error
}

// Outcome is a batch call's completion as delivered by future-style adapters.
type Outcome struct {
	Results []Result
	Err     error
}

// Summary aggregates a batch into succeeded and failed keys.
type Summary struct {
	Succeeded []string
	Failed    []string
}

// Summarize splits results by success. Keys with no result at all are not
// reported in either list.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		if r.OK {
			s.Succeeded = append(s.Succeeded, r.Key)
		} else {
			s.Failed = append(s.Failed, r.Key)
		}
	}
	return s
}

// Keys returns the keys of docs in order.
func Keys(docs []Document) []string {
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	return keys
}
