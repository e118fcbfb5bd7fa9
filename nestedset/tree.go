// Package nestedset maintains a tree stored as flat rows with the nested set
// model: every node carries a left/right interval and a node's descendants
// are exactly the rows whose intervals it contains. Mutations renumber the
// affected rows with one or two ranged conditional updates inside a single
// store transaction.
package nestedset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/nestedset/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("nestedset")

type Tree struct {
	cfg   Config
	store store.Store
	cache *nodeCache
	log   *slog.Logger
}

func NewTree(s store.Store, cfg Config) (*Tree, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	size := cfg.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tree{
		cfg:   cfg,
		store: s,
		log:   logger.With("system", "nestedset"),
	}
	c, err := newNodeCache(&t.cfg, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	t.cache = c
	return t, nil
}

// Config returns a copy of the tree's configuration.
func (t *Tree) Config() Config {
	return t.cfg
}

// Invalidate drops every cached node. Mutations made through this Tree do
// this on their own; callers that change the table some other way must call
// it before reading through the Tree again.
func (t *Tree) Invalidate() {
	t.cache.purge()
}

func (t *Tree) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// mutate runs fn inside one store transaction. The node cache is purged
// before and after, whatever the outcome, and stays unfilled while fn runs. Lookup and validation errors pass
// through unchanged; every other failure comes back wrapped in
// ErrTransaction. The transaction is rolled back on any error.
func (t *Tree) mutate(ctx context.Context, op string, fn func(ops store.Ops) error) (err error) {
	span := trace.SpanFromContext(ctx)
	start := time.Now()
	t.cache.beginMutation()
	defer func() {
		t.cache.endMutation()
		mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		mutationsTotal.WithLabelValues(op, result).Inc()
	}()

	tx, err := t.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: begin: %w", ErrTransaction, op, err)
	}

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			t.log.Error("failed to roll back tree transaction", "op", op, "err", rerr, "cause", err)
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidMove) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrTransaction, op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransaction, op, err)
	}
	return nil
}
