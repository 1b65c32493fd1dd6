package metrics

import (
	"strconv"
	"time"

	"github.com/namelens/guildrest/internal/observability"
)

// Server and error metric names
const (
	ErrorsTotal       = "errors_total"
	ErrorsByEndpoint  = "errors_by_endpoint"
	PanicsTotal       = "panics_total"
	OperationsTotal   = "app_operations_total"
	ServerStartTime   = "app_server_start_time_seconds"
	ServerUptime      = "app_server_uptime_seconds"
	BucketsResetTotal = "buckets_reset_total"
)

func counter(name string, labels map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(name, 1, labels)
}

func gauge(name string, value float64, labels map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(name, value, labels)
}

// RecordError counts an error envelope written to a client.
func RecordError(errorCode string, httpStatus int) {
	counter(ErrorsTotal, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordErrorByEndpoint counts an error against the route pattern that
// produced it.
func RecordErrorByEndpoint(endpoint, errorCode string) {
	counter(ErrorsByEndpoint, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

func RecordPanic() {
	counter(PanicsTotal, nil)
}

// RecordOperation counts a CLI or admin operation by outcome.
func RecordOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	counter(OperationsTotal, map[string]string{"operation": operation, "status": status})
}

// RecordBucketReset counts admin resets that dropped at least one bucket.
func RecordBucketReset(scope string, n int64) {
	if n <= 0 {
		return
	}
	counter(BucketsResetTotal, map[string]string{"scope": scope})
}

// SetServerStartTime publishes start as a Unix timestamp.
func SetServerStartTime(start time.Time) {
	gauge(ServerStartTime, float64(start.Unix()), nil)
}

func SetServerUptime(uptime time.Duration) {
	gauge(ServerUptime, uptime.Seconds(), nil)
}
