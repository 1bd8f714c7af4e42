// Package metrics provides operational metrics for the DC-net core.
// This package tracks per-interval and per-cell counters for observability;
// it has no HTTP exporter of its own, since the core is a library invoked
// by an external driver that owns its own observability surface.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics provides a metrics collection for one node's DC-net session.
type Metrics struct {
	// Round/interval metrics
	IntervalsStarted *Counter
	CellsProduced    *Counter
	CellsDecoded     *Counter
	CellEncodeTime   *Histogram
	CellDecodeTime   *Histogram
	ActiveSlots      *Gauge

	// Trap/integrity metrics
	TrapChecksRun     *Counter
	TrapChecksFailed  *Counter
	DisruptionsFlagged *Counter

	// Request-codec metrics
	RequestGrants     *Counter
	RequestCollisions *Counter

	// Throughput metrics
	PayloadBytesIn  *Counter
	PayloadBytesOut *Counter

	// System metrics
	Uptime      *Gauge
	startTime   time.Time
	startTimeMu sync.RWMutex
}

// New creates a new metrics instance
func New() *Metrics {
	now := time.Now()
	return &Metrics{
		IntervalsStarted: NewCounter(),
		CellsProduced:    NewCounter(),
		CellsDecoded:     NewCounter(),
		CellEncodeTime:   NewHistogram(),
		CellDecodeTime:   NewHistogram(),
		ActiveSlots:      NewGauge(),

		TrapChecksRun:      NewCounter(),
		TrapChecksFailed:   NewCounter(),
		DisruptionsFlagged: NewCounter(),

		RequestGrants:     NewCounter(),
		RequestCollisions: NewCounter(),

		PayloadBytesIn:  NewCounter(),
		PayloadBytesOut: NewCounter(),

		Uptime:    NewGauge(),
		startTime: now,
	}
}

// RecordCellEncode records a cell-encode operation and its duration.
func (m *Metrics) RecordCellEncode(duration time.Duration) {
	m.CellsProduced.Inc()
	m.CellEncodeTime.Observe(duration)
}

// RecordCellDecode records a cell-decode operation and its duration.
func (m *Metrics) RecordCellDecode(duration time.Duration) {
	m.CellsDecoded.Inc()
	m.CellDecodeTime.Observe(duration)
}

// RecordTrapCheck records the outcome of a trustee trap check.
func (m *Metrics) RecordTrapCheck(ok bool) {
	m.TrapChecksRun.Inc()
	if !ok {
		m.TrapChecksFailed.Inc()
		m.DisruptionsFlagged.Inc()
	}
}

// UpdateUptime updates the uptime metric
func (m *Metrics) UpdateUptime() {
	m.startTimeMu.RLock()
	defer m.startTimeMu.RUnlock()
	m.Uptime.Set(int64(time.Since(m.startTime).Seconds()))
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() *Snapshot {
	m.UpdateUptime()
	return &Snapshot{
		IntervalsStarted: m.IntervalsStarted.Value(),
		CellsProduced:    m.CellsProduced.Value(),
		CellsDecoded:     m.CellsDecoded.Value(),
		CellEncodeAvg:    m.CellEncodeTime.Mean(),
		CellEncodeP95:    m.CellEncodeTime.Percentile(0.95),
		CellDecodeAvg:    m.CellDecodeTime.Mean(),
		CellDecodeP95:    m.CellDecodeTime.Percentile(0.95),
		ActiveSlots:      m.ActiveSlots.Value(),

		TrapChecksRun:      m.TrapChecksRun.Value(),
		TrapChecksFailed:   m.TrapChecksFailed.Value(),
		DisruptionsFlagged: m.DisruptionsFlagged.Value(),

		RequestGrants:     m.RequestGrants.Value(),
		RequestCollisions: m.RequestCollisions.Value(),

		PayloadBytesIn:  m.PayloadBytesIn.Value(),
		PayloadBytesOut: m.PayloadBytesOut.Value(),

		UptimeSeconds: m.Uptime.Value(),
	}
}

// Snapshot represents a point-in-time snapshot of metrics
type Snapshot struct {
	IntervalsStarted int64
	CellsProduced    int64
	CellsDecoded     int64
	CellEncodeAvg    time.Duration
	CellEncodeP95    time.Duration
	CellDecodeAvg    time.Duration
	CellDecodeP95    time.Duration
	ActiveSlots      int64

	TrapChecksRun      int64
	TrapChecksFailed   int64
	DisruptionsFlagged int64

	RequestGrants     int64
	RequestCollisions int64

	PayloadBytesIn  int64
	PayloadBytesOut int64

	UptimeSeconds int64
}

// Counter is a monotonically increasing counter
type Counter struct {
	value int64
}

// NewCounter creates a new counter
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Add adds n to the counter
func (c *Counter) Add(n int64) {
	atomic.AddInt64(&c.value, n)
}

// Value returns the current counter value
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Gauge is a value that can go up or down
type Gauge struct {
	value int64
}

// NewGauge creates a new gauge
func NewGauge() *Gauge {
	return &Gauge{}
}

// Set sets the gauge to a specific value
func (g *Gauge) Set(value int64) {
	atomic.StoreInt64(&g.value, value)
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Add adds n to the gauge
func (g *Gauge) Add(n int64) {
	atomic.AddInt64(&g.value, n)
}

// Value returns the current gauge value
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// Histogram tracks distribution of durations
type Histogram struct {
	observations []time.Duration
	mu           sync.RWMutex
}

// NewHistogram creates a new histogram
func NewHistogram() *Histogram {
	return &Histogram{
		observations: make([]time.Duration, 0, 1000),
	}
}

// Observe adds a new observation to the histogram
func (h *Histogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Keep last 1000 observations to prevent unbounded memory growth
	if len(h.observations) >= 1000 {
		h.observations = h.observations[1:]
	}
	h.observations = append(h.observations, d)
}

// Mean returns the mean of all observations
func (h *Histogram) Mean() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.observations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range h.observations {
		sum += d
	}
	return sum / time.Duration(len(h.observations))
}

// Percentile returns the nth percentile (0.0 to 1.0)
func (h *Histogram) Percentile(p float64) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.observations) == 0 {
		return 0
	}

	// Simple percentile calculation - sort observations
	sorted := make([]time.Duration, len(h.observations))
	copy(sorted, h.observations)

	// Bubble sort (fine for our limited observation window)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// Count returns the number of observations
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observations)
}
