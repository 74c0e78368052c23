package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heraldbus/herald/internal/runtime/config"
	errspkg "github.com/heraldbus/herald/internal/runtime/errors"
)

func newTestBus(t *testing.T, mutate func(*config.Config), deps Dependencies) *Bus {
	t.Helper()
	cfg := config.Default()
	cfg.RetryMaxAttempts = 1
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	bus, err := New(cfg, nil, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(bus.Close)
	return bus
}

func TestBusSendReturnsHandlerResult(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return "order-1", nil
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := NewCommand("orders.create", map[string]any{"sku": "ab-1"})
	result, err := bus.Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result != "order-1" {
		t.Fatalf("result = %v, want order-1", result)
	}

	record, ok := bus.Correlation(cmd.CorrelationID())
	if !ok {
		t.Fatal("correlation record missing after send")
	}
	if record.Status != CorrelationCompleted {
		t.Fatalf("correlation status = %s, want %s", record.Status, CorrelationCompleted)
	}
}

func TestBusQueryDispatch(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if err := bus.RegisterQueryHandler("orders.get", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return 42, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := bus.Query(context.Background(), NewQuery("orders.get", nil))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %v, want 42", result)
	}
}

func TestBusKindMismatchRejected(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if _, err := bus.Send(context.Background(), NewQuery("orders.get", nil)); err == nil {
		t.Fatal("Send accepted a query message")
	}
	if err := bus.Publish(context.Background(), NewCommand("orders.create", nil)); err == nil {
		t.Fatal("Publish accepted a command message")
	}
}

func TestBusHandlerNotFound(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	cmd := NewCommand("orders.unknown", nil)
	_, err := bus.Send(context.Background(), cmd)

	var notFound *errspkg.HandlerNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want HandlerNotFoundError", err)
	}
	if notFound.TypeTag != "orders.unknown" {
		t.Fatalf("TypeTag = %q", notFound.TypeTag)
	}

	record, ok := bus.Correlation(cmd.CorrelationID())
	if !ok || record.Status != CorrelationFailed {
		t.Fatalf("correlation = %+v, ok = %v, want failed record", record, ok)
	}
}

func TestBusPublishIsolatesSubscriberErrors(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	var healthy atomic.Int64
	_, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		return errors.New("boom")
	}), nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		healthy.Add(1)
		return nil
	}), nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), NewEvent("orders.created", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if healthy.Load() != 1 {
		t.Fatalf("healthy subscriber ran %d times, want 1", healthy.Load())
	}
}

func TestBusPublishSurfacesStrictSubscriberErrors(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	var other atomic.Int64
	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		return errors.New("boom")
	}), nil, WithIgnoreErrors(false)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		other.Add(1)
		return nil
	}), nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	err := bus.Publish(context.Background(), NewEvent("orders.created", nil))
	var pubErr *errspkg.PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("err = %v, want PublishError", err)
	}
	if other.Load() != 1 {
		t.Fatal("strict failure prevented the other subscriber from running")
	}
}

func TestBusPublishRecoversSubscriberPanic(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		panic("subscriber exploded")
	}), nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), NewEvent("orders.created", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestBusPublishNoSubscribersSucceeds(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	evt := NewEvent("orders.created", nil)
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	record, ok := bus.Correlation(evt.CorrelationID())
	if !ok || record.Status != CorrelationCompleted {
		t.Fatalf("correlation = %+v, ok = %v, want completed", record, ok)
	}
}

func TestBusPublishFilter(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	var seen atomic.Int64
	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		seen.Add(1)
		return nil
	}), func(evt *Message) bool {
		return evt.Header("region") == "eu"
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(),
		NewEvent("orders.created", nil).WithHeader("region", "us"),
		NewEvent("orders.created", nil).WithHeader("region", "eu"),
	); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seen.Load() != 1 {
		t.Fatalf("filter let through %d events, want 1", seen.Load())
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	var seen atomic.Int64
	sub, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		seen.Add(1)
		return nil
	}), nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), NewEvent("orders.created", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	if err := bus.Publish(context.Background(), NewEvent("orders.created", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seen.Load() != 1 {
		t.Fatalf("deliveries = %d, want 1", seen.Load())
	}
}

func TestBusBehaviorShortCircuitSkipsHandler(t *testing.T) {
	var handled atomic.Int64
	shortCircuit := Contribution{
		ID:   "short_circuit",
		Name: "ShortCircuit",
		Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) {
			return "intercepted", nil
		}),
		Placement: First(),
	}
	bus := newTestBus(t, nil, Dependencies{
		DisableDefaultContributions: true,
		Contributions:               []Contribution{shortCircuit},
	})

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		handled.Add(1)
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := bus.Send(context.Background(), NewCommand("orders.create", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result != "intercepted" {
		t.Fatalf("result = %v, want intercepted", result)
	}
	if handled.Load() != 0 {
		t.Fatal("handler ran despite short-circuit")
	}
}

func TestBusRetriesTransientFailures(t *testing.T) {
	bus := newTestBus(t, func(cfg *config.Config) {
		cfg.RetryMaxAttempts = 3
	}, Dependencies{})

	var attempts atomic.Int64
	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := bus.Send(context.Background(), NewCommand("orders.create", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result != "ok" {
		t.Fatalf("result = %v, want ok", result)
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}
}

func TestBusRetryPolicyHeaderNoneDisablesRetries(t *testing.T) {
	bus := newTestBus(t, func(cfg *config.Config) {
		cfg.RetryMaxAttempts = 5
	}, Dependencies{})

	var attempts atomic.Int64
	sentinel := errors.New("always fails")
	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		attempts.Add(1)
		return nil, sentinel
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := NewCommand("orders.create", nil).WithHeader(HeaderRetryPolicy, "none")
	_, err := bus.Send(context.Background(), cmd)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("attempts = %d, want 1", attempts.Load())
	}
}

func TestBusNamedRetryPolicy(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{
		RetryPolicies: map[string]RetryPolicy{
			"aggressive": {MaxAttempts: 4, Schedule: FixedBackoff{Interval: time.Millisecond}},
		},
	})

	var attempts atomic.Int64
	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		attempts.Add(1)
		return nil, errors.New("transient")
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := NewCommand("orders.create", nil).WithHeader(HeaderRetryPolicy, "aggressive")
	if _, err := bus.Send(context.Background(), cmd); err == nil {
		t.Fatal("Send succeeded, want exhaustion")
	}
	if attempts.Load() != 4 {
		t.Fatalf("attempts = %d, want 4", attempts.Load())
	}
}

func TestBusDeadLettersFailedDispatch(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	sentinel := errors.New("storage unavailable")
	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return nil, sentinel
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := NewCommand("orders.create", map[string]any{"sku": "ab-1"})
	_, err := bus.Send(context.Background(), cmd)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want the original handler error", err)
	}

	entries := bus.DeadLetters()
	if len(entries) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(entries))
	}
	if entries[0].Message.ID != cmd.ID {
		t.Fatalf("dead-lettered message id = %s, want %s", entries[0].Message.ID, cmd.ID)
	}
	if entries[0].Reason == "" {
		t.Fatal("dead-letter entry missing reason")
	}
}

func TestBusDeadLetterQueueDisabled(t *testing.T) {
	bus := newTestBus(t, func(cfg *config.Config) {
		cfg.EnableDeadLetterQueue = false
	}, Dependencies{})

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return nil, errors.New("boom")
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := bus.Send(context.Background(), NewCommand("orders.create", nil)); err == nil {
		t.Fatal("Send succeeded, want failure")
	}
	if got := bus.DeadLetters(); got != nil {
		t.Fatalf("DeadLetters = %v, want nil", got)
	}
}

func TestBusClosedRejectsAllEntryPoints(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})
	bus.Close()
	bus.Close() // idempotent

	if _, err := bus.Send(context.Background(), NewCommand("x", nil)); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Fatalf("Send err = %v", err)
	}
	if _, err := bus.Query(context.Background(), NewQuery("x", nil)); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Fatalf("Query err = %v", err)
	}
	if err := bus.Publish(context.Background(), NewEvent("x", nil)); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Fatalf("Publish err = %v", err)
	}
	if _, err := bus.Subscribe("x", EventHandlerFunc(func(context.Context, *Message) error { return nil }), nil); !errors.Is(err, errspkg.ErrBusClosed) {
		t.Fatalf("Subscribe err = %v", err)
	}
	if bus.Health().IsHealthy {
		t.Fatal("closed bus reports healthy")
	}
}

func TestBusNilMessageRejected(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if _, err := bus.Send(context.Background(), nil); !errors.Is(err, errspkg.ErrMessageRequired) {
		t.Fatalf("Send err = %v", err)
	}
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, errspkg.ErrMessageRequired) {
		t.Fatalf("Publish err = %v", err)
	}
}

func TestBusCancelledContextSkipsHandler(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	var handled atomic.Int64
	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		handled.Add(1)
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bus.Send(ctx, NewCommand("orders.create", nil)); err == nil {
		t.Fatal("Send with cancelled context succeeded")
	}
	if handled.Load() != 0 {
		t.Fatal("handler ran under a cancelled context")
	}
}

func TestBusHealthSnapshot(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(context.Context, *Message) error { return nil }), nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	health := bus.Health()
	if !health.IsHealthy {
		t.Fatal("idle bus reports unhealthy")
	}
	if health.RegisteredHandlers != 1 {
		t.Fatalf("RegisteredHandlers = %d, want 1", health.RegisteredHandlers)
	}
	if health.ActiveSubscriptions != 1 {
		t.Fatalf("ActiveSubscriptions = %d, want 1", health.ActiveSubscriptions)
	}
	if health.QueueDepth != 0 {
		t.Fatalf("QueueDepth = %d, want 0", health.QueueDepth)
	}
}

func TestBusMetricsSnapshot(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := bus.Send(context.Background(), NewCommand("orders.create", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := bus.Send(context.Background(), NewCommand("orders.missing", nil)); err == nil {
		t.Fatal("want handler-not-found failure")
	}

	snap := bus.Metrics()
	if snap.MessagesSent != 2 {
		t.Fatalf("MessagesSent = %d, want 2", snap.MessagesSent)
	}
	if snap.MessagesSucceeded != 1 {
		t.Fatalf("MessagesSucceeded = %d, want 1", snap.MessagesSucceeded)
	}
	if snap.MessagesFailed != 1 {
		t.Fatalf("MessagesFailed = %d, want 1", snap.MessagesFailed)
	}
}

func TestBusCommandPublishesCorrelatedEvent(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	var seenCorrelation atomic.Value
	if _, err := bus.Subscribe("orders.created", EventHandlerFunc(func(ctx context.Context, evt *Message) error {
		seenCorrelation.Store(evt.Header(HeaderCorrelationID))
		return nil
	}), nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, cmd *Message) (any, error) {
		evt := NewEvent("orders.created", map[string]string{"order_id": "o-1"}).
			WithHeader(HeaderCorrelationID, cmd.Header(HeaderCorrelationID))
		return "o-1", bus.Publish(ctx, evt)
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := NewCommand("orders.create", map[string]int{"qty": 2})
	result, err := bus.Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result != "o-1" {
		t.Fatalf("result = %v, want o-1", result)
	}

	corrID := cmd.Header(HeaderCorrelationID)
	if corrID == "" {
		t.Fatal("command correlation header not written back")
	}
	if got, _ := seenCorrelation.Load().(string); got != corrID {
		t.Fatalf("event correlation = %q, want %q", got, corrID)
	}
	record, ok := bus.Correlation(corrID)
	if !ok || record.Status != CorrelationCompleted {
		t.Fatalf("correlation record = %+v ok=%v, want completed", record, ok)
	}
}

func TestBusCorrelationHeaderContinues(t *testing.T) {
	bus := newTestBus(t, nil, Dependencies{})

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return nil, nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := NewCommand("orders.create", nil).WithHeader(HeaderCorrelationID, "corr-123")
	if _, err := bus.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send: %v", err)
	}
	record, ok := bus.Correlation("corr-123")
	if !ok {
		t.Fatal("correlation with caller-supplied id not tracked")
	}
	if record.Status != CorrelationCompleted {
		t.Fatalf("status = %s, want completed", record.Status)
	}
}
