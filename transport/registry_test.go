package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BuildKnownBackend(t *testing.T) {
	reg := NewRegistry()
	want := Transport{}
	reg.Register("test", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return want, nil
	}, Capabilities{Name: "test", SupportsAck: true})

	got, err := reg.Build(context.Background(), Settings{Backend: "test"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRegistry_BuildUnknownBackend(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Build(context.Background(), Settings{Backend: "missing"}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestRegistry_BuildNilConfig(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Build(context.Background(), nil, watermill.NopLogger{})
	require.Error(t, err)
}

func TestRegistry_BuilderErrorPropagates(t *testing.T) {
	reg := NewRegistry()
	sentinel := errors.New("dial failed")
	reg.Register("test", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, sentinel
	}, Capabilities{Name: "test"})

	_, err := reg.Build(context.Background(), Settings{Backend: "test"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, sentinel)
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	noop := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	}
	reg.Register("zebra", noop, Capabilities{})
	reg.Register("alpha", noop, Capabilities{})

	assert.Equal(t, []string{"alpha", "zebra"}, reg.Names())
	assert.True(t, reg.Has("alpha"))
	assert.False(t, reg.Has("beta"))
}

func TestRegistry_GetCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	}, Capabilities{Name: "test", Durable: true})

	assert.True(t, reg.GetCapabilities("test").Durable)
	assert.Equal(t, "unknown", reg.GetCapabilities("unknown").Name)
}
