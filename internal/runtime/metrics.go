package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BusMetrics tracks dispatch statistics. Atomic counters feed the cheap
// Metrics() snapshot; the Prometheus collectors are registered only when
// metrics are enabled in the configuration.
type BusMetrics struct {
	sent         atomic.Uint64
	succeeded    atomic.Uint64
	failed       atomic.Uint64
	published    atomic.Uint64
	deadLettered atomic.Uint64
	processingNs atomic.Int64

	mu         sync.Mutex
	registered bool
	registerer prometheus.Registerer

	messagesTotal     *prometheus.CounterVec
	processingSeconds *prometheus.HistogramVec
	dlqTotal          prometheus.Counter
	dlqCurrent        prometheus.Gauge
	queueDepth        prometheus.GaugeFunc
}

// MetricsSnapshot is the point-in-time view returned by Bus.Metrics.
type MetricsSnapshot struct {
	MessagesSent        uint64        `json:"messages_sent"`
	MessagesSucceeded   uint64        `json:"messages_succeeded"`
	MessagesFailed      uint64        `json:"messages_failed"`
	EventsPublished     uint64        `json:"events_published"`
	MessagesDeadLetter  uint64        `json:"messages_dead_lettered"`
	TotalProcessingTime time.Duration `json:"total_processing_time_ns"`
}

func newBusCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "bus",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewBusMetrics creates the metrics collector. queueDepth feeds the
// backpressure gauge; pass nil to skip it.
func NewBusMetrics(registerer prometheus.Registerer, queueDepth func() float64) *BusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &BusMetrics{
		registerer:    registerer,
		messagesTotal: newBusCounterVec("messages_total", "Total number of dispatched messages by kind and outcome", []string{"kind", "status"}),
		processingSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "herald",
				Subsystem: "bus",
				Name:      "processing_seconds",
				Help:      "Dispatch processing time by message kind",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"kind"},
		),
		dlqTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "dlq",
			Name:      "messages_total",
			Help:      "Total number of messages written to the dead letter queue",
		}),
		dlqCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "herald",
			Subsystem: "dlq",
			Name:      "messages_current",
			Help:      "Current number of messages held in the dead letter queue",
		}),
	}

	if queueDepth != nil {
		m.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "herald",
			Subsystem: "bus",
			Name:      "admission_queue_depth",
			Help:      "Number of dispatches waiting for flow-control admission",
		}, queueDepth)
	}

	return m
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *BusMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.processingSeconds,
		m.dlqTotal,
		m.dlqCurrent,
	}
	if m.queueDepth != nil {
		collectors = append(collectors, m.queueDepth)
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *BusMetrics) recordDispatch(kind Kind, err error, elapsed time.Duration) {
	m.sent.Add(1)
	m.processingNs.Add(elapsed.Nanoseconds())

	status := "success"
	if err != nil {
		status = "failure"
		m.failed.Add(1)
	} else {
		m.succeeded.Add(1)
	}

	if m.isRegistered() {
		m.messagesTotal.WithLabelValues(kind.String(), status).Inc()
		m.processingSeconds.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	}
}

func (m *BusMetrics) recordPublish() {
	m.published.Add(1)
	if m.isRegistered() {
		m.messagesTotal.WithLabelValues(KindEvent.String(), "published").Inc()
	}
}

func (m *BusMetrics) recordDeadLetter(current int) {
	m.deadLettered.Add(1)
	if m.isRegistered() {
		m.dlqTotal.Inc()
		m.dlqCurrent.Set(float64(current))
	}
}

func (m *BusMetrics) isRegistered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered
}

// Snapshot returns the current counter values.
func (m *BusMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesSent:        m.sent.Load(),
		MessagesSucceeded:   m.succeeded.Load(),
		MessagesFailed:      m.failed.Load(),
		EventsPublished:     m.published.Load(),
		MessagesDeadLetter:  m.deadLettered.Load(),
		TotalProcessingTime: time.Duration(m.processingNs.Load()),
	}
}
