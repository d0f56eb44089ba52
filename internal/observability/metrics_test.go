package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := getMetrics()

	before := testutil.ToFloat64(m.runTotal.WithLabelValues(PathFallback, "success"))
	RecordAgentRun(PathFallback, 120*time.Millisecond, true)
	assert.Equal(t, before+1, testutil.ToFloat64(m.runTotal.WithLabelValues(PathFallback, "success")))

	before = testutil.ToFloat64(m.fallbackTotal.WithLabelValues("ToolCallingError"))
	RecordFallback("ToolCallingError")
	assert.Equal(t, before+1, testutil.ToFloat64(m.fallbackTotal.WithLabelValues("ToolCallingError")))

	before = testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("calculate_bmi", "error"))
	RecordToolCall("calculate_bmi", false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("calculate_bmi", "error")))

	before = testutil.ToFloat64(m.retryTotal)
	RecordRetry()
	assert.Equal(t, before+1, testutil.ToFloat64(m.retryTotal))
}

func TestMetricsHandler(t *testing.T) {
	RecordTurn("degraded")
	RecordError(PathPrimary, "TimeoutError")
	RecordCompression("diet")
	RecordIterations(2)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "fitcoach_turn_total")
	assert.Contains(t, body, "fitcoach_errors_total")
	assert.Contains(t, body, "fitcoach_context_compressed_total")
	assert.Contains(t, body, "fitcoach_agent_iterations")
}
