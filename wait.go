package vectable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/vectable/internal/manifest"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultPollInterval is the default delay between readiness checks.
	DefaultPollInterval = time.Second
	// DefaultWaitTimeout is the default bound of WaitForIndices.
	DefaultWaitTimeout = 5 * time.Minute
)

type waitOptions struct {
	interval    time.Duration
	timeout     time.Duration
	maxAttempts int
	progress    func(ready, expected int)
}

// WaitOption configures WaitForIndices.
type WaitOption func(*waitOptions)

// WithPollInterval sets the delay between readiness checks.
func WithPollInterval(d time.Duration) WaitOption {
	return func(o *waitOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithWaitTimeout bounds the total wait. A non-positive value disables it.
func WithWaitTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// WithMaxAttempts bounds the number of readiness checks. 0 means unlimited.
func WithMaxAttempts(n int) WaitOption {
	return func(o *waitOptions) { o.maxAttempts = n }
}

// WithProgress calls fn after every check that found fewer than the
// expected indices ready, before the next poll.
func WithProgress(fn func(ready, expected int)) WaitOption {
	return func(o *waitOptions) { o.progress = fn }
}

// WaitForIndices blocks until at least expected indices are ready.
//
// It checks immediately and then once per poll interval. A failing index
// listing counts as "not ready yet". A failed build ends the wait with
// ErrIndexBuildFailed, and exceeding the timeout or the attempt limit with
// ErrIndexWaitTimeout.
func (t *Table) WaitForIndices(ctx context.Context, expected int, opts ...WaitOption) (err error) {
	o := waitOptions{interval: DefaultPollInterval, timeout: DefaultWaitTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := t.db.startSpan(ctx, "vectable.WaitForIndices",
		attribute.String("table", t.name),
		attribute.Int("expected", expected),
	)
	defer func() { endSpan(span, err) }()

	waitCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		ready, err := t.readyIndexes(waitCtx)
		switch {
		case errors.Is(err, ErrIndexBuildFailed):
			return opError("wait for indices", t.name, err)
		case err != nil:
			t.db.logger.DebugContext(ctx, "index listing failed", "table", t.name, "attempt", attempt, "error", err)
		case ready >= expected:
			t.db.logger.InfoContext(ctx, "indices ready", "table", t.name, "ready", ready, "attempts", attempt)
			return nil
		default:
			t.db.logger.DebugContext(ctx, "waiting for indices", "table", t.name, "ready", ready, "expected", expected)
		}

		if o.maxAttempts > 0 && attempt >= o.maxAttempts {
			return opError("wait for indices", t.name,
				fmt.Errorf("%w: %d of %d ready after %d attempts", ErrIndexWaitTimeout, ready, expected, attempt))
		}
		if o.progress != nil {
			o.progress(ready, expected)
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return opError("wait for indices", t.name,
				fmt.Errorf("%w: %d of %d ready after %s", ErrIndexWaitTimeout, ready, expected, o.timeout))
		}
	}
}

// readyIndexes counts ready indexes. A failed index is reported as
// ErrIndexBuildFailed.
func (t *Table) readyIndexes(ctx context.Context) (int, error) {
	metas, err := t.ms.ListIndexes(ctx)
	if err != nil {
		return 0, err
	}
	ready := 0
	for _, m := range metas {
		switch m.Status {
		case manifest.IndexReady:
			ready++
		case manifest.IndexFailed:
			return 0, fmt.Errorf("%w: %s: %s", ErrIndexBuildFailed, m.Name, m.Error)
		}
	}
	return ready, nil
}
