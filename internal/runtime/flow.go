package runtime

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/heraldbus/herald/internal/runtime/config"
)

// FlowController bounds the number of concurrently executing dispatches and
// the admission rate. Waiting callers are suspended, not spun, and are
// granted admission in priority order (FIFO within a priority). Priority
// never reorders work that has already been admitted.
type FlowController struct {
	mu        sync.Mutex
	max       int
	active    int
	waiters   waiterQueue
	seq       uint64
	threshold int
	limiter   *rate.Limiter
}

type waiter struct {
	priority Priority
	seq      uint64
	grant    chan struct{}
	index    int
}

func NewFlowController(cfg *config.Config) *FlowController {
	fc := &FlowController{
		max:       cfg.MaxConcurrentMessages,
		threshold: cfg.HealthQueueThreshold,
	}
	if fc.max <= 0 {
		fc.max = 1
	}
	if cfg.RateLimit > 0 {
		interval := cfg.RateInterval
		limit := rate.Limit(float64(cfg.RateLimit) / interval.Seconds())
		fc.limiter = rate.NewLimiter(limit, cfg.RateLimit)
	}
	return fc
}

// Run executes work under flow control. It blocks until admission is granted
// or ctx fires; the slot is released when work returns.
func (fc *FlowController) Run(ctx context.Context, priority Priority, work func() error) error {
	if fc.limiter != nil {
		if err := fc.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := fc.acquire(ctx, priority); err != nil {
		return err
	}
	defer fc.release()
	return work()
}

func (fc *FlowController) acquire(ctx context.Context, priority Priority) error {
	fc.mu.Lock()
	if fc.active < fc.max && fc.waiters.Len() == 0 {
		fc.active++
		fc.mu.Unlock()
		return nil
	}

	w := &waiter{priority: priority, seq: fc.seq, grant: make(chan struct{})}
	fc.seq++
	heap.Push(&fc.waiters, w)
	fc.mu.Unlock()

	select {
	case <-w.grant:
		return nil
	case <-ctx.Done():
		fc.mu.Lock()
		if w.index >= 0 {
			heap.Remove(&fc.waiters, w.index)
			fc.mu.Unlock()
			return ctx.Err()
		}
		// Already granted while we were cancelling: hand the slot on.
		fc.mu.Unlock()
		fc.release()
		return ctx.Err()
	}
}

func (fc *FlowController) release() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.waiters.Len() > 0 {
		w := heap.Pop(&fc.waiters).(*waiter)
		close(w.grant)
		return
	}
	fc.active--
}

// QueueDepth reports how many dispatches are waiting for admission.
func (fc *FlowController) QueueDepth() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.waiters.Len()
}

// Active reports how many dispatches are currently admitted.
func (fc *FlowController) Active() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.active
}

// Healthy reports false once queue depth exceeds the configured threshold.
// It signals backpressure to health checks and never rejects work itself.
func (fc *FlowController) Healthy() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.waiters.Len() <= fc.threshold
}

// waiterQueue is a max-heap on priority with FIFO tie-break by sequence.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}
