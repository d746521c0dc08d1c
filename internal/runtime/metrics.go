package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "localbroker"

// BrokerMetrics holds the Prometheus collectors of one broker.
type BrokerMetrics struct {
	mu sync.Mutex

	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	callsInFlight   *prometheus.GaugeVec
	broadcastsTotal *prometheus.CounterVec
	listenersHit    *prometheus.CounterVec
	relayTotal      *prometheus.CounterVec
	liveServices    prometheus.Gauge
	startDuration   prometheus.Histogram

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewBrokerMetrics creates unregistered collectors. A nil registerer falls
// back to prometheus.DefaultRegisterer.
func NewBrokerMetrics(registerer prometheus.Registerer) *BrokerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BrokerMetrics{
		registerer:      registerer,
		callsTotal:      newCounterVec("calls", "total", "Total number of dispatched calls", []string{"method", "outcome"}),
		broadcastsTotal: newCounterVec("events", "broadcasts_total", "Total number of emitted events", []string{"event", "scope"}),
		listenersHit:    newCounterVec("events", "listener_invocations_total", "Total number of listener invocations", []string{"scope"}),
		relayTotal:      newCounterVec("relay", "messages_total", "Total number of relayed broadcasts", []string{"direction", "outcome"}),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "calls",
				Name:      "duration_seconds",
				Help:      "Duration of dispatched calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		callsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "calls",
				Name:      "in_flight",
				Help:      "Number of calls currently executing",
			},
			[]string{"method"},
		),
		liveServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "services",
			Name:      "live",
			Help:      "Number of registered services",
		}),
		startDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "services",
			Name:      "start_duration_seconds",
			Help:      "Time Start spent waiting for Started hooks",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *BrokerMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.callsTotal,
		m.callDuration,
		m.callsInFlight,
		m.broadcastsTotal,
		m.listenersHit,
		m.relayTotal,
		m.liveServices,
		m.startDuration,
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

func (m *BrokerMetrics) CallStarted(method string) {
	m.callsInFlight.WithLabelValues(method).Inc()
}

// CallFinished records one completed call under the outcome derived from
// category.
func (m *BrokerMetrics) CallFinished(method string, category ErrorCategory, duration time.Duration) {
	outcome := "success"
	if category != ErrorCategoryNone {
		outcome = string(category)
	}
	m.callsInFlight.WithLabelValues(method).Dec()
	m.callsTotal.WithLabelValues(method, outcome).Inc()
	m.callDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// EventEmitted records one emission of event. scope is "local", "broadcast"
// or "services".
func (m *BrokerMetrics) EventEmitted(event, scope string, listeners int) {
	m.broadcastsTotal.WithLabelValues(event, scope).Inc()
	m.listenersHit.WithLabelValues(scope).Add(float64(listeners))
}

func (m *BrokerMetrics) SetLiveServices(n int) {
	m.liveServices.Set(float64(n))
}

func (m *BrokerMetrics) StartFinished(duration time.Duration) {
	m.startDuration.Observe(duration.Seconds())
}

// RelayPublished and RelayReceived let BrokerMetrics observe the relay.
func (m *BrokerMetrics) RelayPublished(_ string, err error) {
	m.relayTotal.WithLabelValues("out", outcomeOf(err)).Inc()
}

func (m *BrokerMetrics) RelayReceived(_ string, err error) {
	m.relayTotal.WithLabelValues("in", outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
