package processor

import (
	"context"
	"sync"
)

// ProgressFunc receives intermediate status strings pushed by a Processor
// while a query is in flight. Implementations may be called zero or more
// times, at arbitrary intervals, from the processor's own goroutine; calls
// for a single invocation are never concurrent.
type ProgressFunc func(message string)

// Processor turns a natural-language question into a final answer. An
// invocation may take minutes; implementations must honor ctx cancellation
// and report intermediate progress through onProgress.
type Processor interface {
	Invoke(ctx context.Context, question string, onProgress ProgressFunc) (string, error)
}

// Func adapts an ordinary function to the Processor interface.
type Func func(ctx context.Context, question string, onProgress ProgressFunc) (string, error)

// Invoke implements Processor.
func (f Func) Invoke(ctx context.Context, question string, onProgress ProgressFunc) (string, error) {
	return f(ctx, question, onProgress)
}

// Limiter bounds the number of concurrently running invocations. Since a
// client disconnect does not cancel its in-flight invocation, the limiter
// keeps detached background work from growing without bound under disconnect
// churn.
type Limiter struct {
	max    int
	active int
	mu     sync.Mutex
}

// NewLimiter creates a limiter allowing at most max concurrent acquisitions.
// If max == 0, acquisition always succeeds.
func NewLimiter(max int) *Limiter {
	return &Limiter{max: max}
}

// TryAcquire reserves a slot, reporting false when the limiter is saturated.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.active >= l.max {
		return false
	}
	l.active++
	return true
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active > 0 {
		l.active--
	}
}

// Active returns the number of currently held slots.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.active
}
