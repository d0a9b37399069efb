package underwriter

import (
	"context"

	"github.com/suyash-sneo/underwriter/coord"
)

// Client is the entry point for reserving documents.
type Client struct {
	uw *Underwriter
}

type clientOptions struct {
	logger  Logger
	metrics Metrics
	uwOpts  []Option
}

// ClientOption mutates Client construction.
type ClientOption func(*clientOptions)

// WithLogger injects a logger.
func WithLogger(l Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithMetrics injects a metrics recorder.
func WithMetrics(m Metrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// WithUnderwriterOptions passes options through to the Underwriter.
func WithUnderwriterOptions(opts ...Option) ClientOption {
	return func(o *clientOptions) { o.uwOpts = append(o.uwOpts, opts...) }
}

// New validates cfg and builds a Client over store.
func New(cfg Config, store coord.Store, opts ...ClientOption) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	uw, err := NewUnderwriter(cfg, store, o.logger, o.metrics, o.uwOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{uw: uw}, nil
}

// Lease reserves docs and returns a pending Lease.
func (c *Client) Lease(ctx context.Context, docs map[string][]byte) (*Lease, error) {
	return c.uw.Reserve(ctx, docs)
}

// LeaseValues normalizes v (see Normalize) and reserves the result.
func (c *Client) LeaseValues(ctx context.Context, v any) (*Lease, error) {
	docs, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return c.uw.Reserve(ctx, docs)
}

// Underwriter exposes the underlying coordinator.
func (c *Client) Underwriter() *Underwriter {
	return c.uw
}
