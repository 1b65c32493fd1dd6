package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/observability"
)

// Dispatch metric names
const (
	DispatchRequestsTotal    = "dispatch_requests_total"
	DispatchRateLimitedTotal = "dispatch_rate_limited_total"
	DispatchQueueWait        = "dispatch_queue_wait_ms"
	DispatchGlobalLockActive = "dispatch_global_lock_active"
)

// DispatchObserver forwards scheduler events to the telemetry system.
type DispatchObserver struct{}

var _ engine.Observer = DispatchObserver{}

// ObserveDispatch records how long a request waited in its bucket queue.
func (DispatchObserver) ObserveDispatch(key route.Key, queueWait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Histogram(
		DispatchQueueWait,
		queueWait,
		map[string]string{"route": routeLabel(key)},
	)
}

// ObserveResult counts settled requests by route and outcome.
func (DispatchObserver) ObserveResult(key route.Key, statusCode int, err error) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		DispatchRequestsTotal,
		1,
		map[string]string{
			"route":  routeLabel(key),
			"status": statusLabel(statusCode, err),
		},
	)
}

// ObserveRateLimit counts 429s and flags the global lock.
func (DispatchObserver) ObserveRateLimit(key route.Key, global bool, retryAfter time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	scope := "bucket"
	if global {
		scope = "global"
		_ = observability.TelemetrySystem.Gauge(DispatchGlobalLockActive, 1, nil)
	}
	_ = observability.TelemetrySystem.Counter(
		DispatchRateLimitedTotal,
		1,
		map[string]string{
			"route": routeLabel(key),
			"scope": scope,
		},
	)
}

// SetGlobalLockActive publishes the current global lock state.
func SetGlobalLockActive(active bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	value := 0.0
	if active {
		value = 1
	}
	_ = observability.TelemetrySystem.Gauge(DispatchGlobalLockActive, value, nil)
}

// routeLabel drops the major value to keep label cardinality bounded.
func routeLabel(key route.Key) string {
	return key.Method + " " + key.Template
}

func statusLabel(statusCode int, err error) string {
	switch {
	case errors.Is(err, engine.ErrTimeout):
		return "timeout"
	case errors.Is(err, engine.ErrCancelled):
		return "cancelled"
	case errors.Is(err, engine.ErrRateLimitExceeded), errors.Is(err, engine.ErrGlobalRateLimitExceeded):
		return "rate_limited"
	case statusCode > 0:
		return strconv.Itoa(statusCode)
	case err != nil:
		return "transport_error"
	default:
		return "unknown"
	}
}
