package herald

import (
	"context"
	"errors"
	"testing"
)

func TestBusExportsRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	bus, err := New(cfg, NewNopLogger(), Dependencies{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer bus.Close()

	if err := bus.RegisterCommandHandler("orders.create", HandlerFunc(func(ctx context.Context, msg *Message) (any, error) {
		return "order-1", nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := bus.Send(context.Background(), NewCommand("orders.create", map[string]any{"sku": "ab-1"}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result != "order-1" {
		t.Fatalf("result = %v", result)
	}
}

func TestErrorExports(t *testing.T) {
	bus, err := New(DefaultConfig(), NewNopLogger(), Dependencies{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bus.Close()

	if _, err := bus.Send(context.Background(), NewCommand("x", nil)); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("err = %v, want ErrBusClosed", err)
	}
	if _, err := New(nil, NewNopLogger(), Dependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("nil config err = %v", err)
	}
}

func TestPlacementExports(t *testing.T) {
	contributions := []Contribution{
		{ID: "b", Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) { return next.Proceed(ctx) }), Placement: After("a")},
		{ID: "a", Behavior: BehaviorFunc(func(ctx *Context, next Chain) (any, error) { return next.Proceed(ctx) }), Placement: First()},
	}
	bus, err := New(DefaultConfig(), NewNopLogger(), Dependencies{
		DisableDefaultContributions: true,
		Contributions:               contributions,
	})
	if err != nil {
		t.Fatalf("New with placements: %v", err)
	}
	bus.Close()
}

func TestIDExport(t *testing.T) {
	if NewULID() == NewULID() {
		t.Fatal("NewULID returned duplicates")
	}
}
