package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"emacross-core/internal/events"
)

// SystemMetrics tracks pipeline throughput and latency.
type SystemMetrics struct {
	// Latency histograms
	AnalysisLatency *LatencyHistogram
	StoreLatency    *LatencyHistogram

	// Counters
	candlesProcessed uint64
	signalsGenerated uint64
	errorsCount      uint64

	mu  sync.RWMutex
	bus *events.Bus
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool         // Whether samples have changed since last Stats()
	cachedStats LatencyStats // Cached computed stats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		AnalysisLatency: NewLatencyHistogram(1000),
		StoreLatency:    NewLatencyHistogram(1000),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// ObserveAnalysis records the time one pipeline pass took.
func (m *SystemMetrics) ObserveAnalysis(d time.Duration) { m.AnalysisLatency.RecordDuration(d) }

// ObserveStore records the time one signal write took.
func (m *SystemMetrics) ObserveStore(d time.Duration) { m.StoreLatency.RecordDuration(d) }

// IncrementCandles increments processed candles counter.
func (m *SystemMetrics) IncrementCandles() {
	atomic.AddUint64(&m.candlesProcessed, 1)
}

// IncrementSignals increments generated signals counter.
func (m *SystemMetrics) IncrementSignals() {
	atomic.AddUint64(&m.signalsGenerated, 1)
}

// IncrementErrors increments error counter.
func (m *SystemMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// TrackBus reports the drop count of b in snapshots.
func (m *SystemMetrics) TrackBus(b *events.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = b
}

// MetricsSnapshot is a point-in-time copy of SystemMetrics.
type MetricsSnapshot struct {
	AnalysisLatency  LatencyStats `json:"analysis_latency"`
	StoreLatency     LatencyStats `json:"store_latency"`
	CandlesProcessed uint64       `json:"candles_processed"`
	SignalsGenerated uint64       `json:"signals_generated"`
	ErrorsCount      uint64       `json:"errors_count"`
	DroppedEvents    uint64       `json:"dropped_events"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	HeapSys          uint64       `json:"heap_sys_bytes"`
	Timestamp        time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	bus := m.bus
	m.mu.RUnlock()
	var dropped uint64
	if bus != nil {
		dropped = bus.Dropped()
	}

	return MetricsSnapshot{
		AnalysisLatency:  m.AnalysisLatency.Stats(),
		StoreLatency:     m.StoreLatency.Stats(),
		CandlesProcessed: atomic.LoadUint64(&m.candlesProcessed),
		SignalsGenerated: atomic.LoadUint64(&m.signalsGenerated),
		ErrorsCount:      atomic.LoadUint64(&m.errorsCount),
		DroppedEvents:    dropped,
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		HeapSys:          memStats.HeapSys,
		Timestamp:        time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
