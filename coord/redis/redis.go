package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/suyash-sneo/underwriter/coord"
	"github.com/suyash-sneo/underwriter/internal/redis_scripts"
)

const defaultPrefix = "underwriter:"

// Options configure the Redis store.
type Options struct {
	Addr           string
	SentinelAddrs  []string
	SentinelMaster string
	Username       string
	Password       string
	DB             int
	KeyPrefix      string
}

// Store implements coord.Store using Redis. Each document lives in a hash
// holding its value and etag.
type Store struct {
	client goredis.UniversalClient
	prefix string

	insertScript redis_scripts.Script
	touchScript  redis_scripts.Script
}

// New creates a Redis-backed store. Supports single instance or Sentinel via UniversalClient.
func New(opts Options) (*Store, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:      addrs(opts),
		MasterName: opts.SentinelMaster,
		Username:   opts.Username,
		Password:   opts.Password,
		DB:         opts.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, opts.KeyPrefix), nil
}

// NewWithClient wraps an existing client. An empty prefix selects the default.
func NewWithClient(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		client:       client,
		prefix:       prefix,
		insertScript: redis_scripts.NewScript(redis_scripts.Insert),
		touchScript:  redis_scripts.NewScript(redis_scripts.Touch),
	}
}

func addrs(opts Options) []string {
	if len(opts.SentinelAddrs) > 0 {
		return opts.SentinelAddrs
	}
	if opts.Addr != "" {
		return []string{opts.Addr}
	}
	return []string{"127.0.0.1:6379"}
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Insert(ctx context.Context, docs []coord.Document, ttl time.Duration) ([]coord.Result, error) {
	keys := coord.Keys(docs)
	etags := make([]string, len(docs))
	for i := range etags {
		etags[i] = uuid.NewString()
	}
	cmds, err := s.runScript(ctx, s.insertScript, keys, func(i int) []interface{} {
		return []interface{}{docs[i].Value, etags[i], ttl.Milliseconds()}
	})
	if err != nil {
		return nil, err
	}
	results := make([]coord.Result, len(keys))
	for i, cmd := range cmds {
		results[i] = coord.Result{Key: keys[i]}
		n, err := cmd.Int64()
		switch {
		case err != nil:
			results[i].Err = err
		case n == 0:
			results[i].Collision = true
		default:
			results[i].OK = true
			results[i].ETag = etags[i]
		}
	}
	return results, nil
}

func (s *Store) Touch(ctx context.Context, keys []string, ttl time.Duration) ([]coord.Result, error) {
	etags := make([]string, len(keys))
	for i := range etags {
		etags[i] = uuid.NewString()
	}
	cmds, err := s.runScript(ctx, s.touchScript, keys, func(i int) []interface{} {
		return []interface{}{etags[i], ttl.Milliseconds()}
	})
	if err != nil {
		return nil, err
	}
	results := make([]coord.Result, len(keys))
	for i, cmd := range cmds {
		results[i] = coord.Result{Key: keys[i]}
		n, err := cmd.Int64()
		switch {
		case err != nil:
			results[i].Err = err
		case n == 0:
			results[i].Missing = true
		default:
			results[i].OK = true
			results[i].ETag = etags[i]
		}
	}
	return results, nil
}

func (s *Store) Remove(ctx context.Context, keys []string) ([]coord.Result, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Del(ctx, s.docKey(k))
	}
	if _, err := pipe.Exec(ctx); transportError(err) {
		return nil, err
	}

	results := make([]coord.Result, len(keys))
	for i, cmd := range cmds {
		results[i] = coord.Result{Key: keys[i]}
		if err := cmd.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].OK = true
	}
	return results, nil
}

// Get returns the stored value and etag for key.
func (s *Store) Get(ctx context.Context, key string) (value []byte, etag string, ok bool, err error) {
	fields, err := s.client.HGetAll(ctx, s.docKey(key)).Result()
	if err != nil {
		return nil, "", false, err
	}
	if len(fields) == 0 {
		return nil, "", false, nil
	}
	return []byte(fields["value"]), fields["etag"], true, nil
}

// TTL returns the remaining lifetime of key. Zero means the key is permanent.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.client.PTTL(ctx, s.docKey(key)).Result()
	if err != nil {
		return 0, false, err
	}
	switch d {
	case -2:
		return 0, false, nil
	case -1:
		return 0, true, nil
	}
	return d, true, nil
}

// runScript runs script once per key in a single pipeline. If Redis has not
// seen the script yet it is loaded and the pipeline is retried once.
func (s *Store) runScript(ctx context.Context, script redis_scripts.Script, keys []string, args func(i int) []interface{}) ([]*goredis.Cmd, error) {
	cmds, err := s.pipelineScript(ctx, script, keys, args)
	if !anyNoScript(cmds) {
		if transportError(err) {
			return nil, err
		}
		return cmds, nil
	}
	if err := s.client.ScriptLoad(ctx, script.Source).Err(); err != nil {
		return nil, fmt.Errorf("redis script load failed: %w", err)
	}
	cmds, err = s.pipelineScript(ctx, script, keys, args)
	if transportError(err) {
		return nil, err
	}
	return cmds, nil
}

func (s *Store) pipelineScript(ctx context.Context, script redis_scripts.Script, keys []string, args func(i int) []interface{}) ([]*goredis.Cmd, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.Cmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.EvalSha(ctx, script.SHA, []string{s.docKey(k)}, args(i)...)
	}
	_, err := pipe.Exec(ctx)
	return cmds, err
}

// transportError reports whether a pipeline error means the batch as a whole
// failed. Error replies from Redis stay on their command and are reported
// per key.
func transportError(err error) bool {
	if err == nil || errors.Is(err, goredis.Nil) {
		return false
	}
	var reply goredis.Error
	return !errors.As(err, &reply)
}

func anyNoScript(cmds []*goredis.Cmd) bool {
	for _, cmd := range cmds {
		if isNoScript(cmd.Err()) {
			return true
		}
	}
	return false
}

func isNoScript(err error) bool {
	return err != nil && !errors.Is(err, goredis.Nil) && strings.Contains(err.Error(), "NOSCRIPT")
}

func (s *Store) docKey(key string) string {
	return s.prefix + key
}
