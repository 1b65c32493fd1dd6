package observability_test

import (
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger creation", func(t *testing.T) {
		observability.InitCLILogger("guildrest-test", true)

		if observability.CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}
		observability.CLILogger.Debug("bucket queued", zap.String("bucket", "GET /gateway/bot"))
	})

	t.Run("Structured logger creation", func(t *testing.T) {
		observability.InitServerLogger("guildrest-test", "debug", "guildrest")

		if observability.ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}
		observability.ServerLogger.Info("relay ready",
			zap.String("component", "test"),
			zap.Int("port", 8080))
	})
}

func TestDispatchLoggerPrefersServerLogger(t *testing.T) {
	cli, server := observability.CLILogger, observability.ServerLogger
	t.Cleanup(func() {
		observability.CLILogger, observability.ServerLogger = cli, server
	})

	observability.CLILogger, observability.ServerLogger = nil, nil
	if _, ok := observability.DispatchLogger().(*zap.Logger); !ok {
		t.Fatal("expected no-op zap logger before initialization")
	}

	cliLogger, err := logging.NewCLI("dispatch-test")
	if err != nil {
		t.Fatalf("Failed to create CLI logger: %v", err)
	}
	observability.CLILogger = cliLogger
	if observability.DispatchLogger() != observability.FieldLogger(cliLogger) {
		t.Fatal("expected CLI logger")
	}

	// The engine accepts the gofulmen logger directly.
	var _ engine.Logger = observability.DispatchLogger()
	engine.NewScheduler(engine.Options{Logger: observability.DispatchLogger()})
}

func TestInitMetricsBindsAndStops(t *testing.T) {
	if err := observability.InitMetrics("guildrest-test", 0, "guildrest_test"); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "permission") || strings.Contains(err.Error(), "not permitted") {
			t.Skipf("loopback bind refused: %v", err)
		}
		t.Fatalf("InitMetrics: %v", err)
	}
	t.Cleanup(func() { _ = observability.StopMetrics() })

	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		t.Fatal("expected telemetry system and exporter")
	}
	if observability.GetMetricsPort() <= 0 {
		t.Fatalf("expected a bound port, got %d", observability.GetMetricsPort())
	}

	if err := observability.StopMetrics(); err != nil {
		t.Fatalf("StopMetrics: %v", err)
	}
	if observability.TelemetrySystem != nil || observability.PrometheusExporter != nil {
		t.Fatal("expected metrics to be disabled after stop")
	}
	if err := observability.StopMetrics(); err != nil {
		t.Fatalf("second StopMetrics: %v", err)
	}
}
