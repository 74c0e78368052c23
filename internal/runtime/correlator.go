package runtime

import (
	"sync"
	"time"

	idspkg "github.com/heraldbus/herald/internal/runtime/ids"
)

// CorrelationStatus is the lifecycle state of a correlation record.
type CorrelationStatus string

const (
	CorrelationPending   CorrelationStatus = "pending"
	CorrelationCompleted CorrelationStatus = "completed"
	CorrelationFailed    CorrelationStatus = "failed"
)

// CorrelationRecord is the point-in-time view returned by Lookup.
type CorrelationRecord struct {
	ID        string
	CreatedAt time.Time
	Status    CorrelationStatus
	Err       error
}

// Correlator links a request to its eventual completion or failure,
// independent of retries. Records expire after the configured timeout;
// expiry is lazy, performed on the next access, and never cancels in-flight
// work. Complete and MarkFailed are idempotent: resolving an already
// resolved or expired correlation is a no-op.
type Correlator struct {
	mu      sync.Mutex
	timeout time.Duration
	records map[string]*correlationRecord
	now     func() time.Time
}

type correlationRecord struct {
	createdAt time.Time
	status    CorrelationStatus
	err       error
}

func NewCorrelator(timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Correlator{
		timeout: timeout,
		records: make(map[string]*correlationRecord),
		now:     time.Now,
	}
}

// GetOrCreate returns the message's correlation id or mints one, recording a
// pending correlation either way.
func (c *Correlator) GetOrCreate(msg *Message) string {
	id := msg.CorrelationID()
	if id == "" {
		id = idspkg.NewULID()
		msg.WithHeader(HeaderCorrelationID, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked()
	if _, exists := c.records[id]; !exists {
		c.records[id] = &correlationRecord{createdAt: c.now(), status: CorrelationPending}
	}
	return id
}

// Complete marks a pending correlation completed. No-op for resolved,
// expired, or unknown ids.
func (c *Correlator) Complete(id string) {
	c.resolve(id, CorrelationCompleted, nil)
}

// MarkFailed marks a pending correlation failed and links the error. No-op
// for resolved, expired, or unknown ids.
func (c *Correlator) MarkFailed(id string, err error) {
	c.resolve(id, CorrelationFailed, err)
}

func (c *Correlator) resolve(id string, status CorrelationStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked()

	rec, ok := c.records[id]
	if !ok || rec.status != CorrelationPending {
		return
	}
	rec.status = status
	rec.err = err
}

// Lookup returns the correlation record. Expired records report not found
// rather than expired.
func (c *Correlator) Lookup(id string) (CorrelationRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked()

	rec, ok := c.records[id]
	if !ok {
		return CorrelationRecord{}, false
	}
	return CorrelationRecord{ID: id, CreatedAt: rec.createdAt, Status: rec.status, Err: rec.err}, true
}

// Active returns the number of unexpired correlation records.
func (c *Correlator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked()
	return len(c.records)
}

func (c *Correlator) purgeExpiredLocked() {
	cutoff := c.now().Add(-c.timeout)
	for id, rec := range c.records {
		if rec.createdAt.Before(cutoff) {
			delete(c.records, id)
		}
	}
}
