package runtime

import (
	"strconv"

	idspkg "github.com/heraldbus/herald/internal/runtime/ids"
)

// Kind distinguishes the three message variants routed by the bus.
type Kind int

const (
	KindCommand Kind = iota
	KindQuery
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Well-known header keys. Headers are free-form hints; the bus only reads the
// keys below.
const (
	HeaderCorrelationID = "correlation_id"
	HeaderPriority      = "priority"
	HeaderRetryPolicy   = "retry_policy"
)

// Priority orders queued flow-control admission. Higher values are admitted
// first. It never reorders work that has already been admitted.
type Priority int

const (
	PriorityEvent   Priority = 0
	PriorityQuery   Priority = 1
	PriorityCommand Priority = 2
)

// Message is the envelope routed by the bus. The runtime type of the payload
// is identified by TypeTag, a stable string key used for handler lookup, so
// dispatch needs no reflection.
type Message struct {
	ID      string
	Kind    Kind
	TypeTag string
	Headers map[string]string
	Payload any
}

// NewCommand builds a command message. The id is generated when the caller
// does not supply one via WithID.
func NewCommand(typeTag string, payload any) *Message {
	return newMessage(KindCommand, typeTag, payload)
}

// NewQuery builds a query message.
func NewQuery(typeTag string, payload any) *Message {
	return newMessage(KindQuery, typeTag, payload)
}

// NewEvent builds an event message.
func NewEvent(typeTag string, payload any) *Message {
	return newMessage(KindEvent, typeTag, payload)
}

func newMessage(kind Kind, typeTag string, payload any) *Message {
	return &Message{
		ID:      idspkg.NewULID(),
		Kind:    kind,
		TypeTag: typeTag,
		Headers: map[string]string{},
		Payload: payload,
	}
}

// WithID overrides the generated message id.
func (m *Message) WithID(id string) *Message {
	if id != "" {
		m.ID = id
	}
	return m
}

// WithHeader sets a header hint on the message.
func (m *Message) WithHeader(key, value string) *Message {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	m.Headers[key] = value
	return m
}

// Header returns the named header value, "" when absent.
func (m *Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// CorrelationID returns the caller-supplied correlation id, "" when absent.
func (m *Message) CorrelationID() string {
	return m.Header(HeaderCorrelationID)
}

// EffectivePriority resolves the admission priority: an explicit, parseable
// priority header wins, otherwise the message kind decides.
func (m *Message) EffectivePriority() Priority {
	if raw := m.Header(HeaderPriority); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return Priority(n)
		}
	}
	switch m.Kind {
	case KindCommand:
		return PriorityCommand
	case KindQuery:
		return PriorityQuery
	default:
		return PriorityEvent
	}
}
