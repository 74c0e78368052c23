package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heraldbus/herald/internal/runtime/config"
	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
	loggingpkg "github.com/heraldbus/herald/internal/runtime/logging"
)

// Dependencies holds the optional collaborators of a Bus. Leave fields nil
// or zero to skip the related wiring.
type Dependencies struct {
	// Contributions are appended after the default chain. Use placements
	// targeting the stock contribution ids to interleave.
	Contributions []Contribution

	// DisableDefaultContributions skips the standard logging/recovery chain.
	DisableDefaultContributions bool

	// DeadLetterPublisher mirrors dead-letter entries to the configured
	// DeadLetterTopic when both are set.
	DeadLetterPublisher message.Publisher

	// Registerer receives the Prometheus collectors when metrics are
	// enabled. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// RetryPolicies are named policies selectable per message through the
	// retry_policy header. The reserved name "none" disables retries.
	RetryPolicies map[string]RetryPolicy
}

// HealthSnapshot is the point-in-time view returned by Bus.Health.
type HealthSnapshot struct {
	IsHealthy           bool `json:"is_healthy"`
	QueueDepth          int  `json:"queue_depth"`
	ActiveCorrelations  int  `json:"active_correlations"`
	DeadLetterQueueSize int  `json:"dead_letter_queue_size"`
	RegisteredHandlers  int  `json:"registered_handlers"`
	ActiveSubscriptions int  `json:"active_subscriptions"`
}

// Bus is the dispatch façade: it routes commands and queries to their single
// handler through the behavior chain and broadcasts events to subscribers.
// Every dispatch passes flow-control admission and correlation tracking;
// residual failures are dead-lettered and re-raised.
type Bus struct {
	cfg    *config.Config
	logger loggingpkg.ServiceLogger

	registry   *HandlerRegistry
	correlator *Correlator
	flow       *FlowController
	dlq        *DeadLetterQueue
	metrics    *BusMetrics

	resolved     []Contribution
	defaultRetry RetryPolicy
	retryByName  map[string]RetryPolicy

	closed atomic.Bool
}

// New constructs a Bus. The configuration is validated; a nil logger means
// silent operation.
func New(cfg *config.Config, logger loggingpkg.ServiceLogger, deps Dependencies) (*Bus, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := errspkg.NewConfigValidationError(cfg.Validate()); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}

	b := &Bus{
		cfg:          cfg,
		logger:       logger,
		registry:     NewHandlerRegistry(),
		correlator:   NewCorrelator(cfg.CorrelationTimeout),
		flow:         NewFlowController(cfg),
		defaultRetry: DefaultRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryInitialInterval, cfg.RetryMaxInterval),
		retryByName:  deps.RetryPolicies,
	}

	b.metrics = NewBusMetrics(deps.Registerer, func() float64 {
		return float64(b.flow.QueueDepth())
	})
	if cfg.MetricsEnabled {
		if err := b.metrics.Register(); err != nil {
			return nil, err
		}
	}

	if cfg.EnableDeadLetterQueue {
		var opts []DeadLetterOption
		if deps.DeadLetterPublisher != nil && cfg.DeadLetterTopic != "" {
			opts = append(opts, WithMirror(deps.DeadLetterPublisher, cfg.DeadLetterTopic))
		}
		b.dlq = NewDeadLetterQueue(cfg.DeadLetterQueueCapacity, logger, opts...)
	}

	contributions := deps.Contributions
	if !deps.DisableDefaultContributions {
		contributions = append(DefaultContributions(logger), deps.Contributions...)
	}
	resolved, warning, err := SortByPlacement(contributions)
	if err != nil {
		return nil, err
	}
	if warning != nil {
		logger.Error("behavior placement degraded", warning, loggingpkg.LogFields{
			"contributions": warning.IDs,
		})
	}
	b.resolved = resolved

	logger.Info("bus created", loggingpkg.LogFields{
		"behaviors": len(resolved),
		"config":    cfg.String(),
	})
	return b, nil
}

// RegisterCommandHandler binds the single handler for a command type.
func (b *Bus) RegisterCommandHandler(typeTag string, h Handler) error {
	return b.registry.RegisterCommandHandler(typeTag, h)
}

// RegisterQueryHandler binds the single handler for a query type.
func (b *Bus) RegisterQueryHandler(typeTag string, h Handler) error {
	return b.registry.RegisterQueryHandler(typeTag, h)
}

// Subscribe attaches an event handler with an optional filter predicate.
// The returned subscription detaches on Unsubscribe.
func (b *Bus) Subscribe(typeTag string, h EventHandler, filter func(*Message) bool, opts ...SubscribeOption) (*Subscription, error) {
	if b.closed.Load() {
		return nil, errspkg.ErrBusClosed
	}

	options := SubscriptionOptions{IgnoreErrors: true}
	for _, opt := range opts {
		opt(&options)
	}

	sub := newSubscription(typeTag, h, filter, b.registry, options)
	if err := b.registry.AddSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Send dispatches a command to its single handler and returns the handler's
// result, nil for commands without one.
func (b *Bus) Send(ctx context.Context, cmd *Message) (any, error) {
	return b.dispatch(ctx, cmd, KindCommand)
}

// Query dispatches a query to its single handler. The path is identical to
// Send; queries are read-only by convention and are the usual target for the
// caching behavior.
func (b *Bus) Query(ctx context.Context, query *Message) (any, error) {
	return b.dispatch(ctx, query, KindQuery)
}

func (b *Bus) dispatch(ctx context.Context, msg *Message, kind Kind) (any, error) {
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}
	if b.closed.Load() {
		return nil, errspkg.ErrBusClosed
	}
	if msg.Kind != kind {
		return nil, fmt.Errorf("herald: %s entry point received a %s message", kind, msg.Kind)
	}

	correlationID := b.correlator.GetOrCreate(msg)

	var result any
	err := b.flow.Run(ctx, msg.EffectivePriority(), func() error {
		var handler Handler
		var ok bool
		if kind == KindCommand {
			handler, ok = b.registry.CommandHandler(msg.TypeTag)
		} else {
			handler, ok = b.registry.QueryHandler(msg.TypeTag)
		}
		if !ok {
			err := &errspkg.HandlerNotFoundError{TypeTag: msg.TypeTag, Kind: kind.String()}
			b.metrics.recordDispatch(kind, err, 0)
			return err
		}

		pctx := NewContext(ctx, msg)
		chain := NewChain(b.resolved, TerminalHandler(handler))
		res, err := ExecuteWithRetry(ctx, b.retryPolicyFor(msg), func() (any, error) {
			return chain.Proceed(pctx)
		})

		pctx.Finish()
		b.metrics.recordDispatch(kind, err, pctx.Elapsed())

		if err != nil {
			b.recordFailure(correlationID, msg, pctx, err)
			return err
		}
		b.correlator.Complete(correlationID)
		result = res
		return nil
	})
	if err != nil {
		// Admission failures (cancellation, limiter) never reach the
		// handler, so they fail the correlation without dead-lettering
		// twice; recordFailure already handled handler-path errors.
		b.correlator.MarkFailed(correlationID, err)
		return nil, err
	}
	return result, nil
}

// recordFailure marks the correlation failed and captures the message in the
// dead-letter queue. Dead-lettering is an additional side effect: the caller
// still observes the original error.
func (b *Bus) recordFailure(correlationID string, msg *Message, pctx *Context, err error) {
	b.correlator.MarkFailed(correlationID, err)

	if b.dlq == nil {
		return
	}
	b.dlq.Add(DeadLetterEntry{
		Message:    msg,
		Err:        err,
		Reason:     err.Error(),
		Properties: pctx.SnapshotProperties(),
	})
	b.metrics.recordDeadLetter(b.dlq.Count())
	b.logger.Error("message dead-lettered", err, loggingpkg.LogFields{
		"message_id":     msg.ID,
		"type_tag":       msg.TypeTag,
		"correlation_id": correlationID,
	})
}

func (b *Bus) retryPolicyFor(msg *Message) RetryPolicy {
	name := msg.Header(HeaderRetryPolicy)
	if name == "" {
		return b.defaultRetry
	}
	if name == "none" {
		return NoRetry
	}
	if policy, ok := b.retryByName[name]; ok {
		return policy
	}
	return b.defaultRetry
}

// Publish broadcasts each event to every matching subscriber. Subscribers
// run concurrently and are all awaited before Publish returns; a panic or
// error in one subscriber never prevents the others from running. Failures
// of subscribers that opted out of isolation are aggregated into the
// returned error after every subscriber has been attempted.
func (b *Bus) Publish(ctx context.Context, events ...*Message) error {
	if b.closed.Load() {
		return errspkg.ErrBusClosed
	}

	var errs []error
	for _, evt := range events {
		if evt == nil {
			errs = append(errs, errspkg.ErrMessageRequired)
			continue
		}
		if evt.Kind != KindEvent {
			errs = append(errs, fmt.Errorf("herald: publish received a %s message", evt.Kind))
			continue
		}
		if err := b.publishOne(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) publishOne(ctx context.Context, evt *Message) error {
	correlationID := b.correlator.GetOrCreate(evt)

	err := b.flow.Run(ctx, evt.EffectivePriority(), func() error {
		matching := b.matchingSubscriptions(evt)
		b.metrics.recordPublish()
		if len(matching) == 0 {
			return nil
		}

		subErrs := make([]error, len(matching))
		var wg sync.WaitGroup
		wg.Add(len(matching))
		for i, sub := range matching {
			go func(i int, sub *Subscription) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						subErrs[i] = fmt.Errorf("herald: panic recovered: %v", r)
					}
				}()
				subErrs[i] = sub.handler.HandleEvent(ctx, evt)
			}(i, sub)
		}
		wg.Wait()

		var fatal []error
		for i, sub := range matching {
			if subErrs[i] == nil {
				continue
			}
			if sub.opts.IgnoreErrors {
				b.logger.Error("subscriber failed, isolated", subErrs[i], loggingpkg.LogFields{
					"subscription_id": sub.ID(),
					"type_tag":        evt.TypeTag,
				})
				continue
			}
			fatal = append(fatal, subErrs[i])
		}
		if len(fatal) > 0 {
			return &errspkg.PublishError{TypeTag: evt.TypeTag, Errs: fatal}
		}
		return nil
	})

	if err != nil {
		b.correlator.MarkFailed(correlationID, err)
		return err
	}
	b.correlator.Complete(correlationID)
	return nil
}

func (b *Bus) matchingSubscriptions(evt *Message) []*Subscription {
	subs := b.registry.Subscriptions(evt.TypeTag)
	matching := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Matches(evt) {
			matching = append(matching, sub)
		}
	}
	return matching
}

// Health returns the backpressure and bookkeeping snapshot.
func (b *Bus) Health() HealthSnapshot {
	dlqSize := 0
	if b.dlq != nil {
		dlqSize = b.dlq.Count()
	}
	return HealthSnapshot{
		IsHealthy:           !b.closed.Load() && b.flow.Healthy(),
		QueueDepth:          b.flow.QueueDepth(),
		ActiveCorrelations:  b.correlator.Active(),
		DeadLetterQueueSize: dlqSize,
		RegisteredHandlers:  b.registry.HandlerCount(),
		ActiveSubscriptions: b.registry.SubscriptionCount(),
	}
}

// Metrics returns the dispatch counter snapshot.
func (b *Bus) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}

// DeadLetters returns a snapshot of the dead-letter store, oldest first.
func (b *Bus) DeadLetters() []DeadLetterEntry {
	if b.dlq == nil {
		return nil
	}
	return b.dlq.Entries()
}

// Correlation looks up a correlation record by id.
func (b *Bus) Correlation(id string) (CorrelationRecord, bool) {
	return b.correlator.Lookup(id)
}

// Close latches the bus shut. In-flight dispatches finish; new ones are
// rejected with ErrBusClosed.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		b.logger.Info("bus closed", nil)
	}
}
