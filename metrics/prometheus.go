// Package metrics exposes underwriter metrics through Prometheus.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/suyash-sneo/underwriter"
)

// Prometheus implements underwriter.Metrics. Collectors are created on first
// use and keyed by name; the label names seen on that first call are fixed
// for the lifetime of the collector.
type Prometheus struct {
	reg     prometheus.Registerer
	buckets []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	onError    func(error)
}

// Option configures Prometheus.
type Option func(*Prometheus)

// WithBuckets overrides histogram buckets.
func WithBuckets(b []float64) Option {
	return func(p *Prometheus) { p.buckets = b }
}

// WithErrorHandler receives registration and label mismatches. They are
// dropped by default.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Prometheus) { p.onError = fn }
}

// New returns a recorder registering into reg, or the default registerer
// when reg is nil.
func New(reg prometheus.Registerer, opts ...Option) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		reg:        reg,
		buckets:    prometheus.DefBuckets,
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		onError:    func(error) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prometheus) IncCounter(name string, value float64, labels ...underwriter.Label) {
	names, values := split(labels)
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, names)
		if !p.register(vec) {
			p.mu.Unlock()
			return
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()
	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.onError(fmt.Errorf("counter %s: %w", name, err))
		return
	}
	c.Add(value)
}

func (p *Prometheus) SetGauge(name string, value float64, labels ...underwriter.Label) {
	names, values := split(labels)
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help(name)}, names)
		if !p.register(vec) {
			p.mu.Unlock()
			return
		}
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	g, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.onError(fmt.Errorf("gauge %s: %w", name, err))
		return
	}
	g.Set(value)
}

func (p *Prometheus) ObserveHistogram(name string, value float64, labels ...underwriter.Label) {
	names, values := split(labels)
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help(name), Buckets: p.buckets}, names)
		if !p.register(vec) {
			p.mu.Unlock()
			return
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()
	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.onError(fmt.Errorf("histogram %s: %w", name, err))
		return
	}
	h.Observe(value)
}

// register must be called with p.mu held.
func (p *Prometheus) register(c prometheus.Collector) bool {
	if err := p.reg.Register(c); err != nil {
		p.onError(err)
		return false
	}
	return true
}

// split orders labels by name so callers may pass them in any order.
func split(labels []underwriter.Label) (names, values []string) {
	sorted := append([]underwriter.Label(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	names = make([]string, len(sorted))
	values = make([]string, len(sorted))
	for i, l := range sorted {
		names[i], values[i] = l.Name, l.Value
	}
	return names, values
}

func help(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
