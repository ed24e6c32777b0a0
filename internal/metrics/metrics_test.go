package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/metrics"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	m.IncAttempt("granted")
	m.IncFailure("storage")
	m.ObserveMatch(time.Millisecond)
	m.CandidateSkipped("u-1", "decrypt")
	m.AddInFlight(1)
	m.IncHeartbeat(true)
}

func TestMetrics_CountersAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg, reg)

	m.IncAttempt("granted")
	m.IncAttempt("granted")
	m.IncFailure("template_format")
	m.CandidateSkipped("u-1", "decrypt")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attempts.WithLabelValues("granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("template_format")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesSkipped.WithLabelValues("decrypt")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "biogate_verification_attempts_total"))
}
