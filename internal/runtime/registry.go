package runtime

import (
	"context"
	"sync"

	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
)

// Handler processes a command or query and returns its result. Handlers for
// commands without a result return nil.
type Handler interface {
	Handle(ctx context.Context, msg *Message) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) (any, error) {
	return f(ctx, msg)
}

// HandlerRegistry maps message type tags to handlers. Commands and queries
// are strict single-dispatch; events fan out to an ordered subscription list.
// The registry is safe for concurrent use and is read-heavy after startup.
type HandlerRegistry struct {
	mu       sync.RWMutex
	commands map[string]Handler
	queries  map[string]Handler
	events   map[string][]*Subscription
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		commands: make(map[string]Handler),
		queries:  make(map[string]Handler),
		events:   make(map[string][]*Subscription),
	}
}

// RegisterCommandHandler binds the single handler for a command type.
func (r *HandlerRegistry) RegisterCommandHandler(typeTag string, h Handler) error {
	return r.registerSingle(typeTag, h, r.commands, "command")
}

// RegisterQueryHandler binds the single handler for a query type.
func (r *HandlerRegistry) RegisterQueryHandler(typeTag string, h Handler) error {
	return r.registerSingle(typeTag, h, r.queries, "query")
}

func (r *HandlerRegistry) registerSingle(typeTag string, h Handler, into map[string]Handler, kind string) error {
	if typeTag == "" {
		return errspkg.ErrTypeTagRequired
	}
	if h == nil {
		return errspkg.ErrHandlerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := into[typeTag]; exists {
		return &errspkg.DuplicateHandlerError{TypeTag: typeTag, Kind: kind}
	}
	into[typeTag] = h
	return nil
}

// CommandHandler looks up the command handler for typeTag.
func (r *HandlerRegistry) CommandHandler(typeTag string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.commands[typeTag]
	return h, ok
}

// QueryHandler looks up the query handler for typeTag.
func (r *HandlerRegistry) QueryHandler(typeTag string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.queries[typeTag]
	return h, ok
}

// AddSubscription appends an event subscription. Registration always
// succeeds; duplicates are permitted and insertion order is the invocation
// order on publish.
func (r *HandlerRegistry) AddSubscription(sub *Subscription) error {
	if sub == nil || sub.handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if sub.typeTag == "" {
		return errspkg.ErrTypeTagRequired
	}

	r.mu.Lock()
	r.events[sub.typeTag] = append(r.events[sub.typeTag], sub)
	r.mu.Unlock()
	return nil
}

// RemoveSubscription detaches a subscription; unknown ids are a no-op.
func (r *HandlerRegistry) RemoveSubscription(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.events[sub.typeTag]
	for i, s := range list {
		if s == sub {
			r.events[sub.typeTag] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Subscriptions returns a point-in-time copy of the subscription list for an
// event type.
func (r *HandlerRegistry) Subscriptions(typeTag string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.events[typeTag]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Subscription, len(list))
	copy(out, list)
	return out
}

// HandlerCount reports the number of registered command and query handlers.
func (r *HandlerRegistry) HandlerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands) + len(r.queries)
}

// SubscriptionCount reports the number of live event subscriptions.
func (r *HandlerRegistry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, list := range r.events {
		total += len(list)
	}
	return total
}
