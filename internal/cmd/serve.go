package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/config"
	errwrap "github.com/namelens/guildrest/internal/errors"
	"github.com/namelens/guildrest/internal/metrics"
	"github.com/namelens/guildrest/internal/observability"
	"github.com/namelens/guildrest/internal/server"
	"github.com/namelens/guildrest/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	}
	return nil
}

// serverOverrides maps explicitly passed flags onto config keys.
func serverOverrides(cmd *cobra.Command) map[string]any {
	serverSection := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverSection["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		serverSection["port"] = serverPort
	}
	if len(serverSection) == 0 {
		return nil
	}
	return map[string]any{"server": serverSection}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rate limited relay",
	Long: `Run the HTTP relay. Requests to /api/v10/* are matched against the route
catalog and dispatched through the shared rate limit buckets.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload check (restart to apply)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		var overrides []map[string]any
		if o := serverOverrides(cmd); o != nil {
			overrides = append(overrides, o)
		}
		cfg, err := config.Load(ctx, overrides...)
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "config load failed")
		}

		level := cfg.Logging.Level
		if cfg.Debug.Enabled {
			level = "debug"
		}
		observability.InitServerLogger(identity.BinaryName, level, namespace)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		rt, err := newDispatchRuntime(ctx, cfg, cfg.Metrics.Enabled)
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "dispatcher initialization failed")
		}

		storeDriver := "none"
		if rt.store != nil {
			storeDriver = rt.store.Driver()
		}
		observability.ServerLogger.Info("Initializing relay",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("upstream", cfg.API.BaseURL),
			zap.String("store", storeDriver),
			zap.Int("routes", len(rt.catalog.Routes())),
			zap.Float64("global_rate", cfg.Dispatch.GlobalRate))

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
		})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		if rt.store != nil {
			hm.RegisterChecker("store", handlers.CheckFunc(rt.store.Ping))
		}
		handlers.SetAppIdentity(identity)
		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

		srv := server.New(cfg.Server, server.Deps{
			Dispatcher: rt.dispatcher,
			Catalog:    rt.catalog,
			Store:      rt.store,

			DisableHealth: !cfg.Health.Enabled,
			Profiling:     cfg.Debug.PprofEnabled,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown hooks run LIFO: HTTP server, dispatcher, metrics, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.ServerLogger.Sync(); err != nil {
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				observability.ServerLogger.Warn("Metrics exporter stop failed", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			rt.Close()
			observability.ServerLogger.Info("Dispatcher closed")
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			if _, err := config.Load(ctx, overrides...); err != nil {
				observability.ServerLogger.Error("Config reload rejected", zap.Error(err))
				return err
			}
			observability.ServerLogger.Info("Configuration is valid; restart to apply changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		started := time.Now()
		metrics.SetServerStartTime(started)
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					metrics.SetServerUptime(time.Since(started))
				}
			}
		}()

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()
		go func() {
			if err := signals.Listen(ctx); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
