package runtime

import (
	"context"
	"strings"
	"sync"
	"time"

	idspkg "github.com/heraldbus/herald/internal/runtime/ids"
)

// Context carries the mutable state of a single dispatch through the behavior
// chain. One instance exists per dispatch; its id is immutable and unique.
// Property keys are case-insensitive. The cancelled flag is latched: once set
// it is never cleared.
type Context struct {
	id        string
	msg       *Message
	parent    context.Context
	startedAt time.Time

	mu         sync.RWMutex
	props      map[string]any
	result     any
	failure    error
	endedAt    time.Time
	cancelled  bool
	cancelWhy  error
}

// NewContext creates the pipeline context for one dispatch. The parent
// context is the caller's cancellation scope and is handed to handlers.
func NewContext(parent context.Context, msg *Message) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		id:        idspkg.NewULID(),
		msg:       msg,
		parent:    parent,
		startedAt: time.Now(),
		props:     map[string]any{},
	}
}

// ID returns the unique execution id.
func (c *Context) ID() string { return c.id }

// Message returns the dispatched message. The reference is shared, not copied.
func (c *Context) Message() *Message { return c.msg }

// Base returns the caller's context for handing to blocking operations.
func (c *Context) Base() context.Context { return c.parent }

// Set stores a property under a case-insensitive key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	c.props[strings.ToLower(key)] = value
	c.mu.Unlock()
}

// Get returns the property stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.props[strings.ToLower(key)]
	return v, ok
}

// SnapshotProperties returns a deep copy of the property bag. Nested maps of
// string keys are copied one level down; other values are copied by reference.
func (c *Context) SnapshotProperties() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]any, len(c.props))
	for k, v := range c.props {
		if nested, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(nested))
			for nk, nv := range nested {
				inner[nk] = nv
			}
			snapshot[k] = inner
			continue
		}
		snapshot[k] = v
	}
	return snapshot
}

// SetResult stores the in-flight result.
func (c *Context) SetResult(v any) {
	c.mu.Lock()
	c.result = v
	c.mu.Unlock()
}

// Result returns the in-flight result.
func (c *Context) Result() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// Fail records a captured failure on the context.
func (c *Context) Fail(err error) {
	c.mu.Lock()
	c.failure = err
	c.mu.Unlock()
}

// Failure returns the captured failure, nil when the dispatch is healthy.
func (c *Context) Failure() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failure
}

// Cancel latches the cancelled flag. The first recorded cause wins; passing
// nil records a plain caller cancellation.
func (c *Context) Cancel(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	if cause == nil {
		cause = context.Canceled
	}
	c.cancelWhy = cause
}

// Cancelled reports whether the dispatch was cancelled. It also latches when
// the caller's context has been cancelled since the last check.
func (c *Context) Cancelled() bool {
	if err := c.parent.Err(); err != nil {
		c.Cancel(err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelled
}

// CancelCause returns why the dispatch was cancelled, nil when it was not.
func (c *Context) CancelCause() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelWhy
}

// Finish stamps the end of the dispatch. Later calls keep the first stamp.
func (c *Context) Finish() {
	c.mu.Lock()
	if c.endedAt.IsZero() {
		c.endedAt = time.Now()
	}
	c.mu.Unlock()
}

// StartedAt returns when the dispatch entered the pipeline.
func (c *Context) StartedAt() time.Time { return c.startedAt }

// Elapsed returns the dispatch duration so far, or the final duration once
// Finish has been called.
func (c *Context) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.endedAt.IsZero() {
		return time.Since(c.startedAt)
	}
	return c.endedAt.Sub(c.startedAt)
}
