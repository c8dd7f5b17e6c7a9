// Package metrics provides resolution latency tracking and Prometheus metrics.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Stage names recorded by the resolver and scheduler.
const (
	StageExactLookup   = "exact_lookup"
	StageVariantLookup = "variant_lookup"
	StageResolve       = "resolve"
	StagePass          = "pass"
)

// LatencyTracker keeps a sliding window of samples for percentile reporting.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
}

// NewLatencyTracker creates a tracker keeping at most windowSize samples.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record adds a sample, evicting the oldest tenth of the window when full.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = append(lt.samples[:0], lt.samples[drop:]...)
	}
	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
}

// Stats returns count, min, max, average and percentiles of the window.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := len(lt.samples)
	if n == 0 {
		return LatencyStats{}
	}

	// Record evicts from the front, so keep arrival order and sort a copy.
	sorted := make([]int64, n)
	copy(sorted, lt.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}

	pct := func(p float64) time.Duration {
		return time.Duration(sorted[int(float64(n-1)*p)]) * time.Microsecond
	}

	return LatencyStats{
		Count: int64(n),
		Min:   time.Duration(sorted[0]) * time.Microsecond,
		Max:   time.Duration(sorted[n-1]) * time.Microsecond,
		Avg:   time.Duration(sum/int64(n)) * time.Microsecond,
		P50:   pct(0.50),
		P95:   pct(0.95),
		P99:   pct(0.99),
	}
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// ToMap renders the stats in milliseconds for API responses.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":  s.Count,
		"min_ms": ms(s.Min),
		"max_ms": ms(s.Max),
		"avg_ms": ms(s.Avg),
		"p50_ms": ms(s.P50),
		"p95_ms": ms(s.P95),
		"p99_ms": ms(s.P99),
	}
}

// LatencyRegistry holds one tracker per stage.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

// NewLatencyRegistry creates an empty registry.
func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

// Record records a latency for the given stage. Safe on a nil registry.
func (r *LatencyRegistry) Record(stage string, d time.Duration) {
	if r == nil {
		return
	}

	r.mu.RLock()
	tracker, ok := r.trackers[stage]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[stage]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[stage] = tracker
		}
		r.mu.Unlock()
	}

	tracker.Record(d)
}

// AllStats returns statistics for every recorded stage.
func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	if r == nil {
		return map[string]LatencyStats{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for name, tracker := range r.trackers {
		result[name] = tracker.Stats()
	}
	return result
}
