// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_Handler(t *testing.T) {
	var ready atomic.Bool
	server := NewServer("127.0.0.1:0", ready.Load)
	h := server.Handler()

	t.Run("liveness is always ok", func(t *testing.T) {
		code, body := get(t, h, "/healthz/liveness")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok\n", body)
	})

	t.Run("readiness follows the checker", func(t *testing.T) {
		code, body := get(t, h, "/healthz/readiness")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not ready\n", body)

		ready.Store(true)
		code, _ = get(t, h, "/healthz/readiness")
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("metrics expose the pillar series", func(t *testing.T) {
		server.Metrics().ConnectionOpened()
		server.Metrics().ObserveRequest(http.MethodGet, "/api/v1/status", http.StatusOK, 5*time.Millisecond)

		code, body := get(t, h, "/metrics")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "pillar_db_connections_opened_total")
		assert.Contains(t, body, "pillar_http_requests_total")
		assert.Contains(t, body, "go_goroutines")
	})
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectFailed()
	m.StatementFailed()
	m.ObserveRequest(http.MethodPost, "/api/v1/users", http.StatusCreated, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.DBConnectionsOpened), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DBConnectFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DBStatementFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/users", "201")), 0)
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	_, err = server.Start()
	require.Error(t, err, "second start must fail")

	resp, err := http.Get("http://" + server.Addr() + "/healthz/readiness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	http.DefaultClient.CloseIdleConnections()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "stop is idempotent")

	_, open := <-errCh
	assert.False(t, open)
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	server := NewServer("256.0.0.1:bad", nil)
	_, err := server.Start()
	require.Error(t, err)
	assert.Empty(t, server.Addr())
}
