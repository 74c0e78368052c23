package runtime

import (
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/heraldbus/herald/internal/runtime/jsoncodec"
	loggingpkg "github.com/heraldbus/herald/internal/runtime/logging"
)

// DeadLetterEntry captures a permanently failed message for inspection.
type DeadLetterEntry struct {
	Message    *Message       `json:"message"`
	Reason     string         `json:"reason"`
	Err        error          `json:"-"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// DeadLetterQueue is a fixed-capacity FIFO store. Add never blocks and never
// fails: once at capacity the oldest entry is evicted. Reads are
// point-in-time snapshots.
//
// When a mirror publisher and topic are configured, every entry is also
// forwarded as a JSON message, best effort: a mirror failure is logged and
// the entry is still stored.
type DeadLetterQueue struct {
	mu       sync.RWMutex
	entries  []DeadLetterEntry
	capacity int

	mirror      message.Publisher
	mirrorTopic string
	logger      loggingpkg.ServiceLogger
}

// DeadLetterOption configures the queue.
type DeadLetterOption func(*DeadLetterQueue)

// WithMirror forwards dead-letter entries to a transport publisher topic.
func WithMirror(pub message.Publisher, topic string) DeadLetterOption {
	return func(q *DeadLetterQueue) {
		q.mirror = pub
		q.mirrorTopic = topic
	}
}

func NewDeadLetterQueue(capacity int, logger loggingpkg.ServiceLogger, opts ...DeadLetterOption) *DeadLetterQueue {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	q := &DeadLetterQueue{
		entries:  make([]DeadLetterEntry, 0, capacity),
		capacity: capacity,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add appends an entry, evicting the oldest once at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Reason == "" && entry.Err != nil {
		entry.Reason = entry.Err.Error()
	}

	q.mu.Lock()
	if len(q.entries) == q.capacity {
		copy(q.entries, q.entries[1:])
		q.entries = q.entries[:q.capacity-1]
	}
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	q.forward(entry)
}

func (q *DeadLetterQueue) forward(entry DeadLetterEntry) {
	if q.mirror == nil || q.mirrorTopic == "" || entry.Message == nil {
		return
	}

	payload, err := jsoncodec.Marshal(entry)
	if err != nil {
		q.logger.Error("encoding dead-letter entry for mirror", err, loggingpkg.LogFields{
			"message_id": entry.Message.ID,
		})
		return
	}

	msg := message.NewMessage(entry.Message.ID, payload)
	msg.Metadata.Set("type_tag", entry.Message.TypeTag)
	msg.Metadata.Set("reason", entry.Reason)
	if err := q.mirror.Publish(q.mirrorTopic, msg); err != nil {
		q.logger.Error("mirroring dead-letter entry", err, loggingpkg.LogFields{
			"message_id": entry.Message.ID,
			"topic":      q.mirrorTopic,
		})
	}
}

// Count returns the number of stored entries.
func (q *DeadLetterQueue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Entries returns a snapshot of the stored entries, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Capacity returns the configured bound.
func (q *DeadLetterQueue) Capacity() int { return q.capacity }
