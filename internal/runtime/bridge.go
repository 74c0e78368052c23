package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/sync/errgroup"

	"github.com/heraldbus/herald/internal/runtime/jsoncodec"
	loggingpkg "github.com/heraldbus/herald/internal/runtime/logging"
	"github.com/heraldbus/herald/transport"
)

// Bridge header keys on the wire.
const (
	bridgeMetaTypeTag     = "type_tag"
	bridgeMetaCorrelation = "correlation_id"
	bridgeMetaOrigin      = "bridged"
)

// BridgeOptions selects which event types cross the process boundary.
type BridgeOptions struct {
	// OutboundTypeTags are event types forwarded from the bus to the
	// transport. The topic name is the type tag.
	OutboundTypeTags []string

	// InboundTopics are transport topics pumped into the bus as events.
	// The type tag is the topic name.
	InboundTopics []string
}

// Bridge connects a Bus to a transport. Outbound, subscribed event types are
// forwarded to the publisher; inbound, transport topics are republished on
// the bus. Inbound events carry an origin marker so the outbound side never
// echoes them back.
type Bridge struct {
	bus    *Bus
	tr     transport.Transport
	logger loggingpkg.ServiceLogger
	opts   BridgeOptions

	subs []*Subscription
}

// NewBridge wires the outbound subscriptions immediately; inbound pumping
// starts when Run is called.
func NewBridge(bus *Bus, tr transport.Transport, logger loggingpkg.ServiceLogger, opts BridgeOptions) (*Bridge, error) {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	b := &Bridge{bus: bus, tr: tr, logger: logger, opts: opts}

	for _, typeTag := range opts.OutboundTypeTags {
		sub, err := bus.Subscribe(typeTag, EventHandlerFunc(b.forward), func(evt *Message) bool {
			return evt.Header(bridgeMetaOrigin) == ""
		})
		if err != nil {
			b.detach()
			return nil, fmt.Errorf("herald: bridge subscribe %s: %w", typeTag, err)
		}
		b.subs = append(b.subs, sub)
	}
	return b, nil
}

func (b *Bridge) forward(ctx context.Context, evt *Message) error {
	payload, err := jsoncodec.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("herald: bridge encode %s: %w", evt.TypeTag, err)
	}

	wm := message.NewMessage(evt.ID, payload)
	wm.Metadata.Set(bridgeMetaTypeTag, evt.TypeTag)
	if id := evt.CorrelationID(); id != "" {
		wm.Metadata.Set(bridgeMetaCorrelation, id)
	}
	return b.tr.Publisher.Publish(evt.TypeTag, wm)
}

// Run pumps every inbound topic into the bus until the context ends or a
// subscription channel closes. Each topic runs on its own goroutine; the
// first pump failure stops the others.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range b.opts.InboundTopics {
		messages, err := b.tr.Subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("herald: bridge subscribe topic %s: %w", topic, err)
		}
		g.Go(func() error {
			return b.pump(ctx, topic, messages)
		})
	}
	return g.Wait()
}

func (b *Bridge) pump(ctx context.Context, topic string, messages <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wm, ok := <-messages:
			if !ok {
				return nil
			}
			evt := b.toEvent(topic, wm)
			if err := b.bus.Publish(ctx, evt); err != nil {
				b.logger.Error("bridge inbound publish failed", err, loggingpkg.LogFields{
					"topic":      topic,
					"message_id": wm.UUID,
				})
				wm.Nack()
				continue
			}
			wm.Ack()
		}
	}
}

func (b *Bridge) toEvent(topic string, wm *message.Message) *Message {
	typeTag := wm.Metadata.Get(bridgeMetaTypeTag)
	if typeTag == "" {
		typeTag = topic
	}

	var payload any
	if len(wm.Payload) > 0 {
		if err := jsoncodec.Unmarshal(wm.Payload, &payload); err != nil {
			payload = string(wm.Payload)
		}
	}

	evt := NewEvent(typeTag, payload).
		WithID(wm.UUID).
		WithHeader(bridgeMetaOrigin, "true")
	if id := wm.Metadata.Get(bridgeMetaCorrelation); id != "" {
		evt = evt.WithHeader(HeaderCorrelationID, id)
	}
	return evt
}

// Close detaches the outbound subscriptions. The transport itself belongs to
// the caller.
func (b *Bridge) Close() {
	b.detach()
}

func (b *Bridge) detach() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil
}
