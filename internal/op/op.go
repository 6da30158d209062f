// Package op carries the per-operation context the engine borrows from its
// caller: a cooperative cancellation flag and the sink progress is reported to.
package op

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/KHET-1/diamond-drill/internal/event"
)

// Handle is owned by the caller and lent to exactly one running operation.
// The engine polls Cancelled between units of work and never blocks on Emit.
type Handle struct {
	ctx       context.Context //nolint:containedctx // the handle outlives a single call
	sink      event.Sink
	cancelled atomic.Bool
}

// New creates a handle. A nil ctx means context.Background; a nil sink
// discards events.
func New(ctx context.Context, sink event.Sink) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Handle{ctx: ctx, sink: sink}
}

// Cancel requests a stop. It is level-triggered and idempotent; the running
// operation finishes its current unit first.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called or the parent context is done.
func (h *Handle) Cancelled() bool {
	if h == nil {
		return false
	}
	if h.cancelled.Load() {
		return true
	}
	return h.ctx.Err() != nil
}

// Context returns the caller's context.
func (h *Handle) Context() context.Context {
	if h == nil {
		return context.Background()
	}
	return h.ctx
}

// RetryContext returns a context for waits inside a single unit of work. It
// is not cancelled by Cancel or by the parent, so a file that is already
// being read completes with all of its retries.
func (h *Handle) RetryContext() context.Context {
	return context.WithoutCancel(h.Context())
}

// Emit stamps e and hands it to the sink.
func (h *Handle) Emit(e event.Event) {
	if h == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.sink.Emit(e)
}

// Fail emits an Error event for path.
func (h *Handle) Fail(o event.Op, path string, err error) {
	h.Emit(event.Event{Type: event.Error, Op: o, Path: path, Error: err})
}

// Complete emits the terminal event for o.
func (h *Handle) Complete(o event.Op, done, total, bytes int64, halted bool) {
	h.Emit(event.Event{
		Type:      event.OperationComplete,
		Op:        o,
		Done:      done,
		Total:     total,
		Bytes:     bytes,
		Cancelled: h.Cancelled() && !halted,
		Halted:    halted,
	})
}
