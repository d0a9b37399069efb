package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/suyash-sneo/underwriter"
	"github.com/suyash-sneo/underwriter/coord/memory"
	"github.com/suyash-sneo/underwriter/metrics"
)

func TestRunContendsAndDrains(t *testing.T) {
	store := memory.New()
	reg := prometheus.NewRegistry()
	cfg := benchConfig{Workers: 4, Keys: 4, BatchSize: 2, ConfirmRatio: 0.5, Duration: 200 * time.Millisecond, TTL: time.Minute}

	st, err := run(context.Background(), cfg, store, underwriter.NopLogger(), metrics.New(reg))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.reserved.Load() == 0 {
		t.Fatalf("expected reservations, got %s", st)
	}
	if st.failures.Load() != 0 || st.expired.Load() != 0 {
		t.Fatalf("unexpected failures: %s", st)
	}
	if st.confirmed.Load()+st.cancelled.Load() > st.reserved.Load() {
		t.Fatalf("more transitions than reservations: %s", st)
	}
	if n, err := testutil.GatherAndCount(reg, "underwriter_operations_total"); err != nil || n == 0 {
		t.Fatalf("expected operation metrics")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := benchConfig{Workers: 1, Keys: 1, BatchSize: 2, Duration: time.Millisecond}
	if _, err := run(context.Background(), cfg, memory.New(), underwriter.NopLogger(), underwriter.NopMetrics()); err == nil {
		t.Fatalf("expected error for batch larger than key space")
	}
}
