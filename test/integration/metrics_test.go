package integration

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/metrics"
	"github.com/namelens/guildrest/internal/observability"
	"github.com/namelens/guildrest/internal/server"
	"github.com/namelens/guildrest/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { _ = observability.StopMetrics() })
}

// isPermissionError normalizes OS-specific permission errors so we can skip
// when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

func listenOrSkip(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: handler}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// fakeUpstream answers every guild call from a shared 5-request bucket that
// resets after 50ms.
func fakeUpstream(t *testing.T, calls *atomic.Int64) *httptest.Server {
	return listenOrSkip(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(engine.HeaderBucket, "guilds")
		w.Header().Set(engine.HeaderLimit, "5")
		w.Header().Set(engine.HeaderRemaining, fmt.Sprint(4-(n-1)%5))
		w.Header().Set(engine.HeaderResetAfter, "0.05")
		_, _ = io.WriteString(w, `{"id":"1"}`)
	}))
}

func newRelayServer(t *testing.T, upstreamURL string, observer engine.Observer) *httptest.Server {
	t.Helper()
	opts := engine.Options{Observer: observer}
	dispatcher, err := engine.NewDispatcher(engine.Config{BaseURL: upstreamURL, Token: "integration"}, opts)
	require.NoError(t, err)
	t.Cleanup(dispatcher.Close)

	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, server.Deps{Dispatcher: dispatcher})
	return listenOrSkip(t, srv.Handler())
}

func scrape(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(url + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp, string(body)
}

func TestRelayUnderLoadRecordsDispatchMetrics(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	var calls atomic.Int64
	upstream := fakeUpstream(t, &calls)
	ts := newRelayServer(t, upstream.URL, metrics.DispatchObserver{})
	client := ts.Client()

	const numRequests = 20
	const numWorkers = 5

	jobs := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		jobs <- i
	}
	close(jobs)

	var ok atomic.Int64
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for range jobs {
				resp, err := client.Get(ts.URL + "/api/v10/guilds/1")
				if err != nil {
					continue
				}
				if resp.StatusCode == http.StatusOK {
					ok.Add(1)
				}
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.EqualValues(t, numRequests, ok.Load())
	assert.EqualValues(t, numRequests, calls.Load())
	// 20 calls through a 5-per-50ms bucket need at least three resets.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)

	resp, body := scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, metrics.DispatchRequestsTotal)
	assert.Contains(t, body, metrics.DispatchQueueWait)
	assert.Contains(t, body, "http_requests_total")
	t.Logf("relayed %d requests in %v", numRequests, elapsed)
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)
	handlers.InitHealthManager("test")

	var calls atomic.Int64
	upstream := fakeUpstream(t, &calls)
	ts := newRelayServer(t, upstream.URL, metrics.DispatchObserver{})
	client := ts.Client()

	resp, err := client.Get(ts.URL + "/api/v10/guilds/1")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := scrape(t, client, ts.URL)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"), "content type %q", contentType)

	valueLines := 0
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		require.GreaterOrEqual(t, len(strings.Fields(line)), 2, "malformed metric line %q", line)
		valueLines++
	}
	assert.Greater(t, valueLines, 0)
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})
	t.Setenv("GUILDREST_METRICS_ENABLED", "false")
	handlers.InitHealthManager("test")

	var calls atomic.Int64
	upstream := fakeUpstream(t, &calls)
	ts := newRelayServer(t, upstream.URL, metrics.DispatchObserver{})
	client := ts.Client()

	resp, err := client.Get(ts.URL + "/api/v10/guilds/1")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
