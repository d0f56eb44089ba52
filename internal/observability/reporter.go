package observability

import (
	"fmt"
	"sync"

	"github.com/harun/fitcoach/pkg/stats"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SnapshotSource provides running statistics to report.
type SnapshotSource interface {
	Snapshot() stats.Snapshot
}

// Reporter periodically logs a statistics snapshot on a cron schedule.
type Reporter struct {
	source SnapshotSource
	logger zerolog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	started bool
}

// NewReporter schedules a snapshot log line for every tick of spec, a
// standard five-field cron expression or a descriptor such as "@every 5m".
func NewReporter(spec string, source SnapshotSource, logger zerolog.Logger) (*Reporter, error) {
	if source == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}

	r := &Reporter{
		source: source,
		logger: logger.With().Str("component", "stats_reporter").Logger(),
		cron:   cron.New(),
	}

	if _, err := r.cron.AddFunc(spec, r.Report); err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", spec, err)
	}

	return r, nil
}

// Report logs the current snapshot once.
func (r *Reporter) Report() {
	s := r.source.Snapshot()

	tools := zerolog.Dict()
	for name, n := range s.ToolUsageFrequency {
		tools = tools.Int64(name, n)
	}

	r.logger.Info().
		Int64("total_requests", s.TotalRequests).
		Int64("successful_requests", s.SuccessfulRequests).
		Int64("fallback_invocations", s.FallbackInvocations).
		Float64("success_rate", s.SuccessRate).
		Float64("fallback_rate", s.FallbackRate).
		Float64("avg_response_ms", s.AverageResponseTimeMs).
		Dict("tool_usage", tools).
		Msg("Agent statistics")
}

// Start begins the schedule. Calling it twice is a no-op.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()

	if started {
		<-r.cron.Stop().Done()
	}
}
