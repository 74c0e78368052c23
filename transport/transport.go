// Package transport defines the publisher/subscriber pair the bus uses to
// mirror dead letters and to bridge events to external topics. Each backend
// lives in its own sub-package and registers itself with the registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close shuts both halves down. Backends that implement publisher and
// subscriber on one value are only closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config. Each backend package provides a
// Builder and registers it under its backend name.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values backends need. The interface keeps backends
// decoupled from any concrete configuration type.
type Config interface {
	// GetBackend returns the backend name to build, e.g. "channel".
	GetBackend() string

	// GetChannelBufferSize is the per-topic buffer of the channel backend.
	GetChannelBufferSize() int64

	// GetChannelPersistent makes the channel backend replay published
	// messages to late subscribers.
	GetChannelPersistent() bool
}

// Settings is a plain-struct Config for callers without their own
// configuration layer.
type Settings struct {
	Backend           string
	ChannelBufferSize int64
	ChannelPersistent bool
}

func (s Settings) GetBackend() string          { return s.Backend }
func (s Settings) GetChannelBufferSize() int64 { return s.ChannelBufferSize }
func (s Settings) GetChannelPersistent() bool  { return s.ChannelPersistent }

// Capabilities describes what a backend can guarantee. The bridge uses it to
// decide which concerns need application-level emulation.
type Capabilities struct {
	// Name is the backend's registered name.
	Name string

	// SupportsOrdering indicates delivery order matches publish order.
	SupportsOrdering bool

	// SupportsAck indicates explicit message acknowledgment.
	SupportsAck bool

	// Durable indicates messages survive process restarts. In-memory
	// backends report false; dead letters mirrored there are best-effort.
	Durable bool
}
