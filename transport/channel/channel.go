// Package channel provides the in-memory Go channel backend. It is the
// default for in-process deployments and for tests.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/heraldbus/herald/transport"
)

// BackendName is the name this backend registers under.
const BackendName = "channel"

// ChannelCapabilities describes what the in-memory backend guarantees.
var ChannelCapabilities = transport.Capabilities{
	Name:             BackendName,
	SupportsOrdering: true,
	SupportsAck:      true,
	Durable:          false,
}

// Factory allows overriding the pub/sub creation in tests.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.Register(BackendName, Build, ChannelCapabilities)
}

// Build creates a new Go channel transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{
		OutputChannelBuffer:            cfg.GetChannelBufferSize(),
		Persistent:                     cfg.GetChannelPersistent(),
		BlockPublishUntilSubscriberAck: false,
	}, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this backend.
func Capabilities() transport.Capabilities {
	return ChannelCapabilities
}
