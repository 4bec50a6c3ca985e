package chunkspan

import (
	"context"
	"errors"
)

// workTracker is the cooperative cancellation checkpoint. Low-level loops
// call tick for each unit of work; every interval ticks it checks the
// request context and the work limit.
type workTracker struct {
	ctx      context.Context
	limit    int64
	interval int64
	done     int64
	next     int64
	err      error
}

func newWorkTracker(ctx context.Context, limits Limits) *workTracker {
	interval := limits.WorkCheckInterval
	if interval <= 0 {
		interval = 1000
	}
	return &workTracker{ctx: ctx, limit: limits.WorkLimit, interval: interval, next: interval}
}

// tick records n units of work. Once it fails it keeps failing.
func (w *workTracker) tick(n int64) error {
	if w == nil {
		return nil
	}
	if w.err != nil {
		return w.err
	}
	w.done += n
	if w.done < w.next {
		return nil
	}
	w.next = w.done + w.interval
	return w.check()
}

func (w *workTracker) check() error {
	if w.limit > 0 && w.done > w.limit {
		w.err = excessiveWork("query exceeded work limit of %d units", w.limit)
		return w.err
	}
	if err := w.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.err = newQueryError(ErrExcessiveWork, err, "query exceeded its time limit")
		} else {
			w.err = newQueryError(ErrExcessiveWork, err, "query cancelled")
		}
		return w.err
	}
	return nil
}

// Done reports the units of work recorded so far.
func (w *workTracker) Done() int64 { return w.done }
