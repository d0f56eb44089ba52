// Package stats keeps running performance counters for agent turns.
//
// A Recorder is shared by every turn in the process, so all updates go
// through a single mutex. Memory use is constant in the number of requests:
// the average response time is kept as an incremental mean.
package stats

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of a Recorder's state.
type Snapshot struct {
	TotalRequests         int64            `json:"total_requests"`
	SuccessfulRequests    int64            `json:"successful_requests"`
	FallbackInvocations   int64            `json:"fallback_invocations"`
	SuccessRate           float64          `json:"success_rate"`
	FallbackRate          float64          `json:"fallback_rate"`
	AverageResponseTimeMs float64          `json:"average_response_time_ms"`
	ToolUsageFrequency    map[string]int64 `json:"tool_usage_frequency"`
}

// Recorder accumulates request outcomes.
type Recorder struct {
	mu sync.Mutex

	total      int64
	successful int64
	fallbacks  int64
	avgMs      float64
	toolUsage  map[string]int64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		toolUsage: make(map[string]int64),
	}
}

// RecordOutcome counts one request that took responseTime, and one use of
// each named tool.
func (r *Recorder) RecordOutcome(success bool, responseTime time.Duration, tools ...string) {
	ms := float64(responseTime) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if success {
		r.successful++
	}
	r.avgMs += (ms - r.avgMs) / float64(r.total)

	for _, name := range tools {
		r.toolUsage[name]++
	}
}

// RecordFallback counts one invocation of the degraded path.
func (r *Recorder) RecordFallback() {
	r.mu.Lock()
	r.fallbacks++
	r.mu.Unlock()
}

// Snapshot returns a copy of the current counters and derived rates. Rates
// are zero before the first request.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		TotalRequests:         r.total,
		SuccessfulRequests:    r.successful,
		FallbackInvocations:   r.fallbacks,
		AverageResponseTimeMs: r.avgMs,
		ToolUsageFrequency:    make(map[string]int64, len(r.toolUsage)),
	}
	if r.total > 0 {
		s.SuccessRate = float64(r.successful) / float64(r.total)
		s.FallbackRate = float64(r.fallbacks) / float64(r.total)
	}
	for name, n := range r.toolUsage {
		s.ToolUsageFrequency[name] = n
	}
	return s
}

// Reset zeroes every counter. Meant for separating benchmark sessions, not
// for use between ordinary turns.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total = 0
	r.successful = 0
	r.fallbacks = 0
	r.avgMs = 0
	r.toolUsage = make(map[string]int64)
}
