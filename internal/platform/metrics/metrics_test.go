package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_counters(t *testing.T) {
	m := New()
	m.IncTicks()
	m.IncTicks()
	m.IncSkippedTicks()
	m.IncLinkError("timeout")
	m.IncLinkError("timeout")
	m.IncLinkError("buffer_overflow")
	m.IncFramesSent()
	m.SetSceneStats(3, 1)
	m.SetActiveScene(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksSkippedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.linkErrorsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkErrorsTotal.WithLabelValues("buffer_overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSentTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sceneLoads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeScene))
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m, "/metrics"))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/metrics", m.Handler(func() { m.SetActiveStreams(4) }).ServeHTTP)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rs_active_streams 4")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal))
}
