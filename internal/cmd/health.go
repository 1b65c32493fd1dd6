package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/config"
	errwrap "github.com/namelens/guildrest/internal/errors"
	"github.com/namelens/guildrest/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that configuration, the route catalog and the bucket store are usable.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Info("✅ Version information available", zap.String("version", versionInfo.Version))

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		if cfg.API.Token == "" {
			logger.Warn("⚠️  No API token configured; calls will be sent unauthenticated")
		}
		logger.Info("✅ Configuration loaded", zap.String("base_url", cfg.API.BaseURL))

		catalog, err := loadCatalog(cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Route catalog invalid", err)
			return
		}
		logger.Info(fmt.Sprintf("✅ Route catalog ready (%d routes)", len(catalog.Routes())))

		backend, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Bucket store unavailable", errwrap.WrapDatabaseError(cmd.Context(), err, "open bucket store"))
			return
		}
		if backend == nil {
			logger.Info("✅ Bucket store disabled")
		} else {
			defer backend.Close() // nolint:errcheck // best-effort cleanup
			if err := backend.Ping(cmd.Context()); err != nil {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Bucket store unreachable", errwrap.WrapDatabaseError(cmd.Context(), err, "ping bucket store"))
				return
			}
			logger.Info("✅ Bucket store reachable", zap.String("driver", backend.Driver()))
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
