package runtime

import (
	"context"
	"fmt"
	"time"

	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
)

// Chain is a composed continuation. Proceed runs everything after the
// current position, culminating in the terminal link.
type Chain interface {
	Proceed(ctx *Context) (any, error)
}

// ChainFunc adapts a function to the Chain interface.
type ChainFunc func(ctx *Context) (any, error)

func (f ChainFunc) Proceed(ctx *Context) (any, error) {
	return f(ctx)
}

// TerminalResult is a terminal chain that returns the context's existing
// result. Used when a chain is executed without a handler.
var TerminalResult Chain = ChainFunc(func(ctx *Context) (any, error) {
	return ctx.Result(), nil
})

// TerminalHandler wraps the actual handler invocation as the innermost link.
func TerminalHandler(h Handler) Chain {
	return ChainFunc(func(ctx *Context) (any, error) {
		result, err := h.Handle(ctx.Base(), ctx.Message())
		if err != nil {
			return nil, err
		}
		ctx.SetResult(result)
		return result, nil
	})
}

// cursor walks the resolved contribution list by index rather than nested
// closures: link i receives a cursor pointing at i+1. This keeps stack depth
// flat and makes the cancellation check a single place.
type cursor struct {
	steps    []Contribution
	index    int
	terminal Chain
}

func (c *cursor) Proceed(ctx *Context) (any, error) {
	if ctx.Cancelled() {
		return nil, cancellationError(ctx)
	}
	for i := c.index; i < len(c.steps); i++ {
		step := c.steps[i]
		if !step.Active(ctx) {
			continue
		}
		return step.Behavior.Execute(ctx, &cursor{steps: c.steps, index: i + 1, terminal: c.terminal})
	}
	return c.terminal.Proceed(ctx)
}

func cancellationError(ctx *Context) error {
	if cause := ctx.CancelCause(); cause != nil {
		return cause
	}
	return context.Canceled
}

// NewChain builds the live chain from an already resolved contribution list.
func NewChain(resolved []Contribution, terminal Chain) Chain {
	if terminal == nil {
		terminal = TerminalResult
	}
	return &cursor{steps: resolved, terminal: terminal}
}

// BuildChain resolves the contribution set and composes the chain in one
// step. The warning, when non-nil, reports degraded relative placements.
func BuildChain(contributions []Contribution, terminal Chain) (Chain, *errspkg.CircularPlacementWarning, error) {
	resolved, warning, err := SortByPlacement(contributions)
	if err != nil {
		return nil, nil, err
	}
	return NewChain(resolved, terminal), warning, nil
}

// WithErrorHandling catches any failure from next, records it on the
// context, and delegates to the fallback.
func WithErrorHandling(next Chain, fallback func(ctx *Context, err error) (any, error)) Chain {
	return ChainFunc(func(ctx *Context) (any, error) {
		result, err := next.Proceed(ctx)
		if err == nil {
			return result, nil
		}
		ctx.Fail(err)
		if fallback == nil {
			return nil, err
		}
		return fallback(ctx, err)
	})
}

// WithTimeout races next against a timer. On timeout the pipeline context is
// cancelled with a TimeoutError, which stays distinguishable from a caller
// cancellation. A panic inside next is converted into an error so the racing
// goroutine cannot kill the process.
func WithTimeout(next Chain, d time.Duration) Chain {
	if d <= 0 {
		return next
	}
	return ChainFunc(func(ctx *Context) (any, error) {
		type outcome struct {
			result any
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- outcome{err: fmt.Errorf("herald: panic recovered: %v", r)}
				}
			}()
			result, err := next.Proceed(ctx)
			done <- outcome{result: result, err: err}
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case out := <-done:
			return out.result, out.err
		case <-ctx.Base().Done():
			ctx.Cancel(ctx.Base().Err())
			return nil, cancellationError(ctx)
		case <-timer.C:
			timeout := &errspkg.TimeoutError{After: d}
			ctx.Cancel(timeout)
			return nil, timeout
		}
	})
}

// WithRetry re-invokes next according to the policy. See RetryPolicy for the
// attempt accounting and error semantics.
func WithRetry(next Chain, policy RetryPolicy) Chain {
	return ChainFunc(func(ctx *Context) (any, error) {
		return ExecuteWithRetry(ctx.Base(), policy, func() (any, error) {
			if ctx.Cancelled() {
				return nil, cancellationError(ctx)
			}
			return next.Proceed(ctx)
		})
	})
}

// When branches between two chains on a per-dispatch predicate. A nil else
// chain falls through to the context's existing result.
func When(pred func(*Context) bool, then, els Chain) Chain {
	if els == nil {
		els = TerminalResult
	}
	return ChainFunc(func(ctx *Context) (any, error) {
		if pred(ctx) {
			return then.Proceed(ctx)
		}
		return els.Proceed(ctx)
	})
}
