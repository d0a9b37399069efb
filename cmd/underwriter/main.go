package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/suyash-sneo/underwriter"
	"github.com/suyash-sneo/underwriter/internal/zaplog"
	"github.com/suyash-sneo/underwriter/metrics"
)

func main() {
	var (
		configPath string
		mode       string
		redisAddr  string
		backendArg string
		ttl        time.Duration
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&mode, "mode", "simulated", "simulated (embedded redis) or real")
	flag.StringVar(&redisAddr, "redis", "", "redis address for real mode")
	flag.StringVar(&backendArg, "store", "", "store backend: redis, memory or bolt")
	flag.DurationVar(&ttl, "ttl", 0, "reservation ttl (overrides config)")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if redisAddr != "" {
		cfg.Store.Redis.Addr = redisAddr
	}
	if backendArg != "" {
		cfg.Store.Backend = backendArg
	}
	if ttl > 0 {
		cfg.TTL = ttl
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := zaplog.NewDevelopment(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	be, err := openBackend(cfg.Store, mode)
	if err != nil {
		logger.Error("open store", underwriter.Field{Key: "backend", Value: cfg.Store.Backend}, underwriter.Field{Key: "err", Value: err})
		os.Exit(1)
	}
	defer be.Close()

	client, err := underwriter.New(cfg.Config, be,
		underwriter.WithLogger(logger),
		underwriter.WithMetrics(metrics.New(nil)),
	)
	if err != nil {
		logger.Error("client", underwriter.Field{Key: "err", Value: err})
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("underwriter shell ready",
		underwriter.Field{Key: "backend", Value: cfg.Store.Backend},
		underwriter.Field{Key: "mode", Value: mode},
		underwriter.Field{Key: "ttl", Value: cfg.TTL},
	)
	sh := newShell(client, be.get, os.Stdout)
	if err := repl(ctx, sh); err != nil {
		logger.Error("shell", underwriter.Field{Key: "err", Value: err})
	}
}

func repl(ctx context.Context, sh *shell) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	sh.out = rl.Stdout()
	fmt.Fprintln(sh.out, "Type 'help' for commands.")

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !sh.handleCommand(ctx, strings.TrimSpace(line)) {
			return nil
		}
	}
	return nil
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "underwriter_history")
}
