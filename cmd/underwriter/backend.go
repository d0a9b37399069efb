package main

import (
	"context"
	"fmt"
	"io"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/suyash-sneo/underwriter/coord"
	"github.com/suyash-sneo/underwriter/coord/bolt"
	"github.com/suyash-sneo/underwriter/coord/memory"
	redisstore "github.com/suyash-sneo/underwriter/coord/redis"
)

// backend is a store the shell can also read back from.
type backend struct {
	coord.Store
	get     func(ctx context.Context, key string) ([]byte, string, bool, error)
	closers []io.Closer
}

func (b *backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openBackend builds the configured store. In simulated mode the redis
// backend runs against an embedded miniredis server.
func openBackend(cfg storeConfig, mode string) (*backend, error) {
	switch cfg.Backend {
	case "memory":
		mem := memory.New()
		return &backend{
			Store: mem,
			get: func(_ context.Context, key string) ([]byte, string, bool, error) {
				v, etag, ok := mem.Get(key)
				return v, etag, ok, nil
			},
		}, nil
	case "bolt":
		var opts []bolt.Option
		if cfg.Bolt.Bucket != "" {
			opts = append(opts, bolt.WithBucket(cfg.Bolt.Bucket))
		}
		db, err := bolt.Open(cfg.Bolt.Path, opts...)
		if err != nil {
			return nil, err
		}
		return &backend{
			Store: db,
			get: func(_ context.Context, key string) ([]byte, string, bool, error) {
				return db.Get(key)
			},
			closers: []io.Closer{db},
		}, nil
	case "redis":
		b := &backend{}
		opts := redisstore.Options{
			Addr:           cfg.Redis.Addr,
			SentinelAddrs:  cfg.Redis.SentinelAddrs,
			SentinelMaster: cfg.Redis.SentinelMaster,
			Username:       cfg.Redis.Username,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			KeyPrefix:      cfg.Redis.KeyPrefix,
		}
		if mode != "real" {
			server, err := miniredis.Run()
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, closerFunc(func() error { server.Close(); return nil }))
			opts.Addr, opts.SentinelAddrs, opts.SentinelMaster = server.Addr(), nil, ""
		}
		rs, err := redisstore.New(opts)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store, b.get = rs, rs.Get
		b.closers = append(b.closers, rs)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
