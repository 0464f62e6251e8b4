package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorIsolatedRegistries(t *testing.T) {
	// 每个 Collector 独立注册，重复创建不会 panic
	assert.NotPanics(t, func() {
		NewCollector()
		NewCollector()
	})
}

func TestRecordCounters(t *testing.T) {
	c := NewCollector()

	c.RecordTransition("approve", "in_progress")
	c.RecordTransition("approve", "in_progress")
	c.RecordBatchCompleted("Mixing", false)
	c.RecordBatchCompleted("Mixing", true)
	c.RecordStop()
	c.RecordRelease("locked_rm", 3)
	c.RecordRelease("reserved_fg", 0)
	c.RecordError("approve", "invalid_state_transition")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("approve", "in_progress")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.batchCompleted.WithLabelValues("Mixing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.autoCompletions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stops))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.releases.WithLabelValues("locked_rm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("approve", "invalid_state_transition")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTransition("submit", "submitted")
		c.RecordStop()
		c.ObserveLockWait(0.1)
		c.SetRealtimeClients(3)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordStop()
	c.SetRealtimeClients(2)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "mes_order_stops_total 1"))
	assert.True(t, strings.Contains(body, "mes_realtime_clients 2"))
}
