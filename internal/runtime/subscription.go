package runtime

import (
	"context"
	"sync"

	idspkg "github.com/heraldbus/herald/internal/runtime/ids"
)

// EventHandler consumes a published event. Errors are isolated per
// subscriber unless the subscription opts out via IgnoreErrors(false).
type EventHandler interface {
	HandleEvent(ctx context.Context, evt *Message) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, evt *Message) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, evt *Message) error {
	return f(ctx, evt)
}

// SubscriptionOptions tunes how the bus treats one subscriber.
type SubscriptionOptions struct {
	// IgnoreErrors keeps a subscriber's failure from failing the publish.
	// Defaults to true: one subscriber's error is logged and the others
	// still run.
	IgnoreErrors bool
}

// SubscribeOption mutates SubscriptionOptions.
type SubscribeOption func(*SubscriptionOptions)

// WithIgnoreErrors controls error isolation for the subscription.
func WithIgnoreErrors(ignore bool) SubscribeOption {
	return func(o *SubscriptionOptions) { o.IgnoreErrors = ignore }
}

// Subscription is the disposable handle returned by Subscribe.
type Subscription struct {
	id      string
	typeTag string
	handler EventHandler
	filter  func(*Message) bool
	opts    SubscriptionOptions

	registry *HandlerRegistry
	once     sync.Once
}

func newSubscription(typeTag string, h EventHandler, filter func(*Message) bool, registry *HandlerRegistry, opts SubscriptionOptions) *Subscription {
	return &Subscription{
		id:       idspkg.NewULID(),
		typeTag:  typeTag,
		handler:  h,
		filter:   filter,
		opts:     opts,
		registry: registry,
	}
}

// ID returns the unique subscription id.
func (s *Subscription) ID() string { return s.id }

// TypeTag returns the event type the subscription listens to.
func (s *Subscription) TypeTag() string { return s.typeTag }

// Matches applies the optional filter predicate.
func (s *Subscription) Matches(evt *Message) bool {
	if s.filter == nil {
		return true
	}
	return s.filter(evt)
}

// Unsubscribe detaches the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.registry != nil {
			s.registry.RemoveSubscription(s)
		}
	})
}
