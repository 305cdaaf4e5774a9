package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	RecordSearch(120*time.Millisecond, true)
	RecordSearch(50*time.Millisecond, false)
	RecordSync(300*time.Millisecond, true)
	SetIndexSize(3, 42)
	RecordCompaction("summarize", 2)
	RecordWatcherEvent("modified")

	handler := MetricsHandler()
	require.NotNil(t, handler)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, metric := range []string{
		"memory_search_total",
		"memory_search_duration_seconds",
		"memory_sync_total",
		"memory_sync_duration_seconds",
		"memory_indexed_files",
		"memory_indexed_chunks",
		"memory_compaction_files_total",
		"memory_watcher_events_total",
	} {
		assert.Contains(t, body, metric)
	}
}

func TestRegistryGather(t *testing.T) {
	EnsureRegistered()
	SetIndexSize(7, 99)

	families, err := Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	values := map[string]float64{}
	for _, mf := range families {
		if len(mf.Metric) == 1 && mf.Metric[0].Gauge != nil {
			values[mf.GetName()] = mf.Metric[0].Gauge.GetValue()
		}
	}
	assert.Equal(t, 7.0, values["memory_indexed_files"])
	assert.Equal(t, 99.0, values["memory_indexed_chunks"])
}
