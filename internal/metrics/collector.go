package metrics

import (
	"sync"
	"time"
)

// Collector accumulates per-operation counts and latencies for a store
// backend. It is safe for concurrent use by request goroutines.
type Collector struct {
	mu        sync.Mutex
	counts    map[string]int64
	errors    map[string]int64
	latencies map[string]time.Duration
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counts:    make(map[string]int64),
		errors:    make(map[string]int64),
		latencies: make(map[string]time.Duration),
	}
}

// Measure runs operation, recording its latency under op and counting any
// error it returns. The operation's error is passed through unchanged.
func (c *Collector) Measure(op string, operation func() error) error {
	start := time.Now()
	err := operation()
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[op]++
	c.latencies[op] += elapsed
	if err != nil {
		c.errors[op]++
	}

	return err
}

// Snapshot returns a copy of the collected metrics. Keys are
// "<op>.count", "<op>.errors" and "<op>.avgLatencyNs".
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]interface{}, len(c.counts)*3)
	for op, count := range c.counts {
		snapshot[op+".count"] = count
		snapshot[op+".errors"] = c.errors[op]
		if count > 0 {
			snapshot[op+".avgLatencyNs"] = c.latencies[op].Nanoseconds() / count
		}
	}

	return snapshot
}

// Count returns the number of recorded invocations of op.
func (c *Collector) Count(op string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[op]
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts = make(map[string]int64)
	c.errors = make(map[string]int64)
	c.latencies = make(map[string]time.Duration)
}
