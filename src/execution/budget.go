package execution

import (
	"context"
	"sync"
	"time"

	"tradeledger/src/metrics"
)

// Budget is a rolling-window call quota. Acquire blocks until a slot is free,
// i.e. until the oldest call in the window ages out.
type Budget struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewBudget(limit int, window time.Duration) *Budget {
	return &Budget{
		limit:  limit,
		window: window,
		now:    time.Now,
		after:  time.After,
	}
}

// Acquire records one call, waiting for room in the window if needed.
// A non-positive limit disables the budget.
func (b *Budget) Acquire(ctx context.Context) error {
	if b.limit <= 0 {
		return nil
	}

	start := b.now()
	for {
		b.mu.Lock()
		now := b.now()
		b.prune(now)
		if len(b.calls) < b.limit {
			b.calls = append(b.calls, now)
			b.mu.Unlock()
			metrics.BudgetWait.Observe(now.Sub(start).Seconds())
			return nil
		}
		wait := b.calls[0].Add(b.window).Sub(now)
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.after(wait):
		}
	}
}

// Remaining returns how many calls can be made right now without waiting.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())
	return b.limit - len(b.calls)
}

func (b *Budget) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.calls) && !b.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.calls = append(b.calls[:0], b.calls[i:]...)
	}
}
