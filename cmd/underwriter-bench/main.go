package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/suyash-sneo/underwriter"
	"github.com/suyash-sneo/underwriter/coord"
	"github.com/suyash-sneo/underwriter/coord/memory"
	redisstore "github.com/suyash-sneo/underwriter/coord/redis"
	"github.com/suyash-sneo/underwriter/internal/zaplog"
	"github.com/suyash-sneo/underwriter/metrics"
)

type benchConfig struct {
	Workers      int
	Keys         int
	BatchSize    int
	ConfirmRatio float64
	Duration     time.Duration
	TTL          time.Duration
}

type stats struct {
	reserved   atomic.Int64
	collisions atomic.Int64
	confirmed  atomic.Int64
	cancelled  atomic.Int64
	expired    atomic.Int64
	failures   atomic.Int64
}

func (s *stats) String() string {
	return fmt.Sprintf("reserved=%d collisions=%d confirmed=%d cancelled=%d expired=%d failures=%d",
		s.reserved.Load(), s.collisions.Load(), s.confirmed.Load(), s.cancelled.Load(), s.expired.Load(), s.failures.Load())
}

func main() {
	var (
		cfg         benchConfig
		storeKind   string
		redisAddr   string
		metricsAddr string
		verbose     bool
	)
	flag.IntVar(&cfg.Workers, "workers", 8, "concurrent workers")
	flag.IntVar(&cfg.Keys, "keys", 32, "size of the contended key space")
	flag.IntVar(&cfg.BatchSize, "batch", 3, "keys per reservation")
	flag.Float64Var(&cfg.ConfirmRatio, "confirm", 0.5, "fraction of leases confirmed rather than cancelled")
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Second, "bench duration")
	flag.DurationVar(&cfg.TTL, "ttl", time.Second, "reservation ttl")
	flag.StringVar(&storeKind, "store", "memory", "memory, redis (embedded) or redis-real")
	flag.StringVar(&redisAddr, "redis", "127.0.0.1:6379", "redis address for redis-real")
	flag.StringVar(&metricsAddr, "metrics", "", "serve prometheus metrics on this address")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	logger, err := zaplog.NewDevelopment(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := openStore(storeKind, redisAddr)
	if err != nil {
		logger.Error("open store", underwriter.Field{Key: "err", Value: err})
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg, metrics.WithErrorHandler(func(err error) {
		logger.Warn("metrics", underwriter.Field{Key: "err", Value: err})
	}))
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", underwriter.Field{Key: "err", Value: err})
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := run(ctx, cfg, store, logger, rec)
	if err != nil {
		logger.Error("bench", underwriter.Field{Key: "err", Value: err})
	}
	if st != nil {
		fmt.Println(st)
	}
}

func openStore(kind, addr string) (coord.Store, func(), error) {
	switch kind {
	case "memory":
		return memory.New(), func() {}, nil
	case "redis", "redis-real":
		var server *miniredis.Miniredis
		if kind == "redis" {
			var err error
			if server, err = miniredis.Run(); err != nil {
				return nil, nil, err
			}
			addr = server.Addr()
		}
		rs, err := redisstore.New(redisstore.Options{Addr: addr, KeyPrefix: "bench:"})
		if err != nil {
			if server != nil {
				server.Close()
			}
			return nil, nil, err
		}
		return rs, func() {
			_ = rs.Close()
			if server != nil {
				server.Close()
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

// run drives cfg.Workers goroutines that reserve random batches from a
// shared key space until cfg.Duration elapses or ctx ends. Confirmed keys
// are released again so the key space never drains.
func run(ctx context.Context, cfg benchConfig, store coord.Store, logger underwriter.Logger, rec underwriter.Metrics) (*stats, error) {
	if cfg.Workers <= 0 || cfg.Keys <= 0 || cfg.BatchSize <= 0 || cfg.BatchSize > cfg.Keys {
		return nil, fmt.Errorf("invalid bench config %+v", cfg)
	}
	ucfg := underwriter.DefaultConfig()
	ucfg.TTL = cfg.TTL
	opts := []underwriter.ClientOption{underwriter.WithLogger(logger), underwriter.WithMetrics(rec)}
	if gen, err := underwriter.NodeScopedIDs("bench"); err == nil {
		opts = append(opts, underwriter.WithUnderwriterOptions(underwriter.WithIDGenerator(gen)))
	}
	client, err := underwriter.New(ucfg, store, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	st := &stats{}
	var active atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		rng := rand.New(rand.NewSource(int64(w) + 1))
		g.Go(func() error {
			rec.SetGauge("bench_active_workers", float64(active.Add(1)))
			defer func() { rec.SetGauge("bench_active_workers", float64(active.Add(-1))) }()
			for ctx.Err() == nil {
				if err := step(ctx, client, cfg, rng, st); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return st, g.Wait()
}

func step(ctx context.Context, client *underwriter.Client, cfg benchConfig, rng *rand.Rand, st *stats) error {
	docs := make(map[string][]byte, cfg.BatchSize)
	for len(docs) < cfg.BatchSize {
		docs["key:"+strconv.Itoa(rng.Intn(cfg.Keys))] = []byte("bench")
	}
	lease, err := client.Lease(ctx, docs)
	switch {
	case errors.Is(err, underwriter.ErrCollision):
		st.collisions.Add(1)
		return nil
	case err != nil:
		return countFailure(ctx, st, err)
	}
	st.reserved.Add(1)

	if rng.Float64() >= cfg.ConfirmRatio {
		if err := lease.Cancel(ctx); err != nil {
			return countFailure(ctx, st, err)
		}
		st.cancelled.Add(1)
		return nil
	}
	err = lease.Confirm(ctx)
	switch {
	case errors.Is(err, underwriter.ErrExpired):
		st.expired.Add(1)
		return nil
	case err != nil:
		return countFailure(ctx, st, err)
	}
	st.confirmed.Add(1)
	if err := client.Underwriter().Cancel(context.WithoutCancel(ctx), lease.Keys()); err != nil {
		return countFailure(ctx, st, err)
	}
	return nil
}

// countFailure records err unless it was caused by the bench winding down.
func countFailure(ctx context.Context, st *stats, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	st.failures.Add(1)
	if errors.Is(err, underwriter.ErrStore) {
		return nil
	}
	return err
}
