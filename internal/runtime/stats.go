package runtime

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/drblury/localbroker/internal/runtime/jsoncodec"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// MethodStats accumulates dispatch statistics for one method key. Entries
// outlive the method they describe so a destroyed service's history stays
// visible in the admin API.
type MethodStats struct {
	mu sync.Mutex `json:"-"`

	Calls           uint64    `json:"calls"`
	Failures        uint64    `json:"failures"`
	TotalDurationNs int64     `json:"total_duration_ns"`
	InFlight        int64     `json:"in_flight"`
	LastCalledAt    time.Time `json:"last_called_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`

	latencyWindow    *latencyWindow    `json:"-"`
	throughputWindow *throughputWindow `json:"-"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS    float64 `json:"current_rps"`
	WindowSeconds float64 `json:"window_seconds"`
	CallsInWindow uint64  `json:"calls_in_window"`
}

// ErrorBreakdown counts failures per ErrorCategory.
type ErrorBreakdown struct {
	NotFound  uint64 `json:"not_found"`
	Panic     uint64 `json:"panic"`
	Canceled  uint64 `json:"canceled"`
	Handler   uint64 `json:"handler"`
	LastError string `json:"last_error,omitempty"`
}

type ErrorCategory string

const (
	ErrorCategoryNone     ErrorCategory = "none"
	ErrorCategoryNotFound ErrorCategory = "not_found"
	ErrorCategoryPanic    ErrorCategory = "panic"
	ErrorCategoryCanceled ErrorCategory = "canceled"
	ErrorCategoryHandler  ErrorCategory = "handler"
)

// ErrorClassifier maps a call error to the category it is counted under.
type ErrorClassifier func(error) ErrorCategory

func newMethodStats() *MethodStats {
	return &MethodStats{
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

func (m *MethodStats) onCallStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InFlight++
}

func (m *MethodStats) onCallFinish(duration time.Duration, category ErrorCategory, err error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InFlight > 0 {
		m.InFlight--
	}
	m.Calls++
	if err != nil {
		m.Failures++
	}
	m.TotalDurationNs += int64(duration)
	m.LastCalledAt = now.UTC()

	m.latencyWindow.Add(duration)
	latency := m.latencyWindow.Snapshot()
	latency.AverageNs = m.TotalDurationNs / int64(m.Calls)
	m.Latency = latency

	window := m.throughputWindow.AddAndSnapshot(now)
	m.Throughput = ThroughputMetrics{
		CurrentRPS:    window.CurrentRPS,
		WindowSeconds: window.WindowSeconds,
		CallsInWindow: uint64(window.Count),
	}

	m.Errors.Record(category, err)
}

// Snapshot returns a copy safe to read without holding the lock.
func (m *MethodStats) Snapshot() MethodStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MethodStats{
		Calls:           m.Calls,
		Failures:        m.Failures,
		TotalDurationNs: m.TotalDurationNs,
		InFlight:        m.InFlight,
		LastCalledAt:    m.LastCalledAt,
		Latency:         m.Latency,
		Throughput:      m.Throughput,
		Errors:          m.Errors,
	}
}

func (m *MethodStats) MarshalJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type Alias MethodStats
	return jsoncodec.Marshal((*Alias)(m))
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	if err == nil {
		return
	}
	switch category {
	case ErrorCategoryNotFound:
		e.NotFound++
	case ErrorCategoryPanic:
		e.Panic++
	case ErrorCategoryCanceled:
		e.Canceled++
	default:
		e.Handler++
	}
	e.LastError = err.Error()
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	drop := 0
	for drop < len(tw.samples) && tw.samples[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		tw.samples = append(tw.samples[:0], tw.samples[drop:]...)
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return throughputSnapshot{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(tw.samples)) / span.Seconds(),
	}
}

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var notFound *MethodNotFoundError
	if errors.As(err, &notFound) {
		return ErrorCategoryNotFound
	}
	var panicked *HandlerPanicError
	if errors.As(err, &panicked) {
		return ErrorCategoryPanic
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	return ErrorCategoryHandler
}
