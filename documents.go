package underwriter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/suyash-sneo/underwriter/coord"
)

// Normalize converts a map with string keys into document bytes. []byte and
// string values are taken as-is; anything else is JSON encoded.
func Normalize(v any) (map[string][]byte, error) {
	switch m := v.(type) {
	case map[string][]byte:
		out := make(map[string][]byte, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, nil
	case map[string]string:
		out := make(map[string][]byte, len(m))
		for k, val := range m {
			out[k] = []byte(val)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, ErrNotMapping
	}
	out := make(map[string][]byte, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		val, err := encodeValue(iter.Value().Interface())
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return json.Marshal(val)
	}
}

// toDocuments validates docs and returns them sorted by key.
func toDocuments(docs map[string][]byte) ([]coord.Document, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]coord.Document, 0, len(docs))
	for k, v := range docs {
		if k == "" {
			return nil, ErrEmptyKey
		}
		out = append(out, coord.Document{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func validateKeys(keys []string) error {
	if len(keys) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			return ErrEmptyKey
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}
