package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/guildrest/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	prev := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = prev })

	return collector
}

func serve(h http.Handler, method, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestMetricsEmitsPerStatus(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantErrors bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"id":"42"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErrors: true},
		{name: "upstream failure", status: http.StatusBadGateway, wantErrors: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			collector := setupTelemetry(t)
			h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))

			rec := serve(h, http.MethodGet, "/api/v10/channels/42", nil)

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.body, rec.Body.String())
			assert.Greater(t, collector.CountMetricsByName("http_requests_total"), 0)
			assert.Greater(t, collector.CountMetricsByName("http_request_duration_ms"), 0)
			assert.Greater(t, collector.CountMetricsByName("http_response_size_bytes"), 0)
			if tc.wantErrors {
				assert.Greater(t, collector.CountMetricsByName("http_errors_total"), 0)
			} else {
				assert.Zero(t, collector.CountMetricsByName("http_errors_total"))
			}
		})
	}
}

func TestRequestMetricsWithoutTelemetry(t *testing.T) {
	prev := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = prev })

	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	require.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/v1/buckets", nil).Code)
}

func TestRequestMetricsRecordsRequestSizeAndDuration(t *testing.T) {
	collector := setupTelemetry(t)
	h := RequestMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
	}))

	start := time.Now()
	serve(h, http.MethodPost, "/api/v10/channels/42/messages", func(r *http.Request) {
		r.Body = http.NoBody
		r.ContentLength = 512
	})

	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Greater(t, collector.CountMetricsByName("http_request_size_bytes"), 0)
	assert.Greater(t, collector.CountMetricsByName("http_request_duration_ms"), 0)
}

func TestEndpointPatternFallbacks(t *testing.T) {
	cases := map[string]string{
		"/health":                     "/health/*",
		"/health/ready":               "/health/*",
		"/version":                    "/version",
		"/metrics":                    "/metrics",
		"/api/v10/guilds/1/members/2": "/api/*",
		"/v1/buckets":                 "/v1/*",
		"/debug/pprof/heap":           "/debug/*",
		"/favicon.ico":                "/unknown",
		"/":                           "/",
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, getEndpointPattern(httptest.NewRequest(http.MethodGet, path, nil)))
		})
	}
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "rate_limited", errorType(http.StatusTooManyRequests))
	assert.Equal(t, "client_error", errorType(http.StatusNotFound))
	assert.Equal(t, "server_error", errorType(http.StatusBadGateway))
}

func TestEndpointPatternPrefersChiRoute(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/api/v10/channels/{channel_id}", func(w http.ResponseWriter, req *http.Request) {
		got = getEndpointPattern(req)
	})

	serve(r, http.MethodGet, "/api/v10/channels/42", nil)

	require.Equal(t, "/api/v10/channels/{channel_id}", got)
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("caller supplied", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/routes", func(r *http.Request) {
			r.Header.Set(RequestIDHeader, "relay-7")
		})
		require.Equal(t, "relay-7", rec.Header().Get(RequestIDHeader))
		require.Equal(t, "relay-7", seen)
	})

	t.Run("oversized replaced", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/routes", func(r *http.Request) {
			r.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		})
		require.Len(t, rec.Header().Get(RequestIDHeader), 36)
		require.Equal(t, rec.Header().Get(RequestIDHeader), seen)
	})

	t.Run("generated", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/routes", nil)
		require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})
}

func TestGetRequestIDFromPlainContext(t *testing.T) {
	require.Empty(t, GetRequestID(context.Background()))
	require.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc")))
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	h := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := serve(h, http.MethodGet, "/v1/buckets", func(r *http.Request) {
		r.Header.Set(RequestIDHeader, "req-1")
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INTERNAL_ERROR"`)
	require.Contains(t, rec.Body.String(), `"request_id":"req-1"`)
}
