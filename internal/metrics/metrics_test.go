package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/vs-recorder/internal/metrics"
)

func TestStatusClass(t *testing.T) {
	tests := map[int]string{0: "error", 200: "2xx", 204: "2xx", 401: "4xx", 503: "5xx"}
	for status, want := range tests {
		assert.Equal(t, want, metrics.StatusClass(status))
	}
}

func TestCountersAndHandler(t *testing.T) {
	m := metrics.New(func() int { return 3 })

	m.ObserveRequest("auth.login", 200, 20*time.Millisecond)
	m.ObserveRequest("auth.login", 401, 10*time.Millisecond)
	m.ObserveRequest("teams.list", 0, time.Second)
	m.ObserveAuth("login", "success")
	m.ObserveToast("error")

	n, err := testutil.GatherAndCount(m.Registry(), "vsrecorder_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.Contains(t, text, `vsrecorder_api_requests_total{op="auth.login",status="4xx"} 1`)
	assert.Contains(t, text, `vsrecorder_api_requests_total{op="teams.list",status="error"} 1`)
	assert.Contains(t, text, `vsrecorder_session_transitions_total{op="login",outcome="success"} 1`)
	assert.Contains(t, text, `vsrecorder_toasts_shown_total{kind="error"} 1`)
	assert.Contains(t, text, `vsrecorder_websocket_clients 3`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a := metrics.New(nil)
	b := metrics.New(nil)
	a.ObserveAuth("logout", "success")

	n, err := testutil.GatherAndCount(b.Registry(), "vsrecorder_session_transitions_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}
