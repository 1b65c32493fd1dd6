package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type envelopeBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func doProbe(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAggregateReportsEveryCheck(t *testing.T) {
	hm := NewHealthManager("0.4.0")
	hm.RegisterChecker("store", CheckFunc(func(context.Context) error { return nil }))
	hm.RegisterChecker("dispatcher", CheckFunc(func(context.Context) error { return nil }))

	rec := doProbe(t, hm.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, statusHealthy, resp.Status)
	require.Equal(t, "0.4.0", resp.Version)
	require.Equal(t, map[string]string{"store": statusHealthy, "dispatcher": statusHealthy}, resp.Checks)
}

func TestUnreachableStoreFailsReadiness(t *testing.T) {
	hm := NewHealthManager("0.4.0")
	hm.RegisterChecker("store", CheckFunc(func(context.Context) error { return errors.New("redis: connection refused") }))
	hm.RegisterChecker("dispatcher", CheckFunc(func(context.Context) error { return nil }))

	rec := doProbe(t, hm.ReadinessHandler, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body envelopeBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	require.Equal(t, "readiness probe failed", body.Error.Message)
	require.Equal(t, "ready", body.Error.Details["probe"])

	checks, ok := body.Error.Details["checks"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, statusUnhealthy, checks["store"])
	require.Equal(t, statusHealthy, checks["dispatcher"])
	require.Equal(t, []any{"store"}, body.Error.Details["unhealthy_checks"])
}

func TestExpiredProbeContextDegrades(t *testing.T) {
	hm := NewHealthManager("dev")
	hm.RegisterChecker("store", CheckFunc(func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checks := hm.runHealthChecks(ctx)

	require.Equal(t, statusTimeout, checks["store"])
	require.Equal(t, statusDegraded, hm.determineOverallStatus(checks))
	require.Equal(t, statusUnhealthy, hm.determineOverallStatus(map[string]string{
		"store": statusTimeout,
		"relay": statusUnhealthy,
	}))
}

func TestProbesWithoutChecksAreHealthy(t *testing.T) {
	hm := NewHealthManager("dev")
	for path, h := range map[string]http.HandlerFunc{
		"/health/live":    hm.LivenessHandler,
		"/health/startup": hm.StartupHandler,
	} {
		rec := doProbe(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp ProbeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, statusHealthy, resp.Status)
		require.False(t, resp.Timestamp.IsZero())
	}
}

func TestGlobalHandlersFollowInitHealthManager(t *testing.T) {
	saved := GetHealthManager()
	t.Cleanup(func() {
		globalMu.Lock()
		globalHealthManager = saved
		globalMu.Unlock()
	})

	globalMu.Lock()
	globalHealthManager = nil
	globalMu.Unlock()

	rec := doProbe(t, LivenessHandler, "/health/live")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	InitHealthManager("1.0.0")
	require.NotNil(t, GetHealthManager())
	require.Equal(t, http.StatusOK, doProbe(t, LivenessHandler, "/health/live").Code)
}
