package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetadata describes the request a latency sample belongs to.
type RequestMetadata struct {
	Method     string
	Endpoint   string
	StatusCode int
}

// Collector records per-request metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	total        *latencyStats
	endpoints    map[string]*latencyStats
	statusCodes  map[string]map[string]int
	errorsByType map[string]int64
	start        time.Time
}

type latencyStats struct {
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	Duration       time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms"`

	Endpoints     map[string]Stats          `json:"endpoints,omitempty"`
	StatusBuckets map[string]map[string]int `json:"status_buckets,omitempty"`
	Errors        map[string]int            `json:"errors,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		total:        newLatencyStats(),
		endpoints:    make(map[string]*latencyStats),
		statusCodes:  make(map[string]map[string]int),
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

func newLatencyStats() *latencyStats {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &latencyStats{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// Start resets the reference time used by Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since the collector was created or last started.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RecordRequest records a single request's latency and error state. meta may be nil.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total.record(latency, err)

	if err != nil {
		c.errorsByType[ErrorKind(err)]++
	}
	if meta == nil {
		return
	}

	if meta.Endpoint != "" {
		ep, ok := c.endpoints[meta.Endpoint]
		if !ok {
			ep = newLatencyStats()
			c.endpoints[meta.Endpoint] = ep
		}
		ep.record(latency, err)
	}

	if meta.StatusCode > 0 {
		method := meta.Method
		if method == "" {
			method = "HTTP"
		}
		codes, ok := c.statusCodes[method]
		if !ok {
			codes = make(map[string]int)
			c.statusCodes[method] = codes
		}
		codes[strconv.Itoa(meta.StatusCode)]++
	}
}

func (s *latencyStats) record(latency time.Duration, err error) {
	if latency > 0 {
		us := latency.Microseconds()
		if us < s.hist.LowestTrackableValue() {
			us = s.hist.LowestTrackableValue()
		}
		if us > s.hist.HighestTrackableValue() {
			us = s.hist.HighestTrackableValue()
		}
		_ = s.hist.RecordValue(us)
	}
	s.sumLatency += latency

	if s.minLatency == 0 || latency < s.minLatency {
		s.minLatency = latency
	}
	if latency > s.maxLatency {
		s.maxLatency = latency
	}

	if err == nil {
		s.successes++
	} else {
		s.failures++
	}
}

func (s *latencyStats) snapshot(elapsed time.Duration) Stats {
	total := s.successes + s.failures
	stats := Stats{
		Total:      total,
		Successes:  s.successes,
		Failures:   s.failures,
		MinLatency: s.minLatency,
		MaxLatency: s.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(s.sumLatency) / total)
	}

	if s.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(s.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(s.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(s.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}
	return stats
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.total.snapshot(elapsed)

	if len(c.endpoints) > 0 {
		stats.Endpoints = make(map[string]Stats, len(c.endpoints))
		for name, ep := range c.endpoints {
			stats.Endpoints[name] = ep.snapshot(elapsed)
		}
	}

	if len(c.statusCodes) > 0 {
		stats.StatusBuckets = make(map[string]map[string]int, len(c.statusCodes))
		for method, codes := range c.statusCodes {
			copied := make(map[string]int, len(codes))
			for code, n := range codes {
				copied[code] = n
			}
			stats.StatusBuckets[method] = copied
		}
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
