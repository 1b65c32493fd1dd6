package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/observability"
)

func secretState(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		log.Info("=== " + identity.BinaryName + " environment ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS/ARCH:  "+runtime.GOOS+"/"+runtime.GOARCH, zap.String("goos", runtime.GOOS), zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("API:")
		log.Info("  Base URL:       "+cfg.API.BaseURL, zap.String("base_url", cfg.API.BaseURL))
		log.Info("  Token:          " + secretState(cfg.API.Token))
		log.Info("  User Agent:     " + cfg.API.UserAgent)
		log.Info("  Timeout:        "+cfg.API.Timeout.String(), zap.Duration("timeout", cfg.API.Timeout))
		log.Info("  HTTP Timeout:   "+cfg.API.HTTPTimeout.String(), zap.Duration("http_timeout", cfg.API.HTTPTimeout))
		log.Info("")

		log.Info("Dispatch:")
		log.Info(fmt.Sprintf("  Max Retries:    %d", cfg.Dispatch.MaxRetries), zap.Int("max_retries", cfg.Dispatch.MaxRetries))
		log.Info(fmt.Sprintf("  Global Rate:    %.2f/s (burst %d)", cfg.Dispatch.GlobalRate, cfg.Dispatch.GlobalBurst))
		routesFile := cfg.Dispatch.RoutesFile
		if routesFile == "" {
			routesFile = "(built-in catalog only)"
		}
		log.Info("  Routes File:    " + routesFile)
		log.Info("")

		log.Info("Store:")
		log.Info("  Driver:         "+cfg.Store.Driver, zap.String("store_driver", cfg.Store.Driver))
		switch strings.ToLower(cfg.Store.Driver) {
		case "redis":
			log.Info("  Redis Addr:     " + cfg.Store.Redis.Addr)
			log.Info("  Redis Prefix:   " + cfg.Store.Redis.Prefix)
			log.Info("  Redis Password: " + secretState(cfg.Store.Redis.Password))
		case "none":
		default:
			if strings.TrimSpace(cfg.Store.URL) != "" {
				log.Info("  URL:            " + cfg.Store.URL)
				log.Info("  Auth Token:     " + secretState(cfg.Store.AuthToken))
			} else {
				log.Info("  Path:           " + cfg.Store.Path)
			}
		}
		log.Info("")

		log.Info("Server:")
		log.Info("  Host:           "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		log.Info(fmt.Sprintf("  Port:           %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		log.Info("  Log Profile:    " + cfg.Logging.Profile)
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("")

		log.Info("=== end ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
