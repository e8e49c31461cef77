package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestHandlerExposesRequestHistogram(t *testing.T) {
	Init()
	ObserveRequest(http.MethodPost, "/api/v1/jobs/:job_id/accept", http.StatusConflict, 15*time.Millisecond)
	AcceptTotal.WithLabelValues("conflict").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "dispatch_http_request_duration_seconds"))
	assert.Contains(t, body, `route="/api/v1/jobs/:job_id/accept"`)
	assert.Contains(t, body, `dispatch_accept_total{outcome="conflict"}`)
}
