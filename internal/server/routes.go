package server

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/appid"
	"github.com/namelens/guildrest/internal/observability"
	"github.com/namelens/guildrest/internal/server/handlers"
)

// RelayPrefix is the path prefix mirrored onto the upstream API.
const RelayPrefix = "/api/v10"

const (
	adminSignalPath  = "/admin/signal"
	adminSignalRate  = 10
	adminSignalBurst = 5
)

func (s *Server) registerRoutes() {
	if !s.deps.DisableHealth {
		s.router.Route("/health", func(r chi.Router) {
			r.Get("/", handlers.HealthHandler)
			r.Get("/live", handlers.LivenessHandler)
			r.Get("/ready", handlers.ReadinessHandler)
			r.Get("/startup", handlers.StartupHandler)
		})
	}
	if s.deps.Profiling {
		s.router.Mount("/debug", chimw.Profiler())
	}
	s.router.Get("/version", handlers.NewVersionHandler(s.relayInfo))
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/routes", s.routesHandler)
		r.Get("/buckets", s.bucketsHandler)
		r.Delete("/buckets", s.resetBucketsHandler)
	})
	s.router.HandleFunc(RelayPrefix+"/*", s.relayHandler)

	if token := adminToken(); token != "" {
		s.router.Post(adminSignalPath, signals.NewHTTPHandler(signals.HTTPConfig{
			TokenAuth: token,
			RateLimit: adminSignalRate,
			RateBurst: adminSignalBurst,
		}).ServeHTTP)
		if logger := observability.ServerLogger; logger != nil {
			logger.Info("Admin signal endpoint enabled",
				zap.String("path", adminSignalPath),
				zap.Int("rate_per_min", adminSignalRate),
				zap.Int("burst", adminSignalBurst))
		}
	}
}

func (s *Server) relayInfo() handlers.RelayInfo {
	info := handlers.RelayInfo{
		Prefix:       RelayPrefix,
		StoreBackend: "none",
		Dispatching:  s.deps.Dispatcher != nil,
	}
	if s.deps.Catalog != nil {
		info.Routes = len(s.deps.Catalog.Routes())
	}
	if s.deps.Store != nil {
		info.StoreBackend = s.deps.Store.Driver()
	}
	return info
}

// adminToken reads <PREFIX>ADMIN_TOKEN. An empty token leaves /admin/signal
// unmounted.
func adminToken() string {
	return os.Getenv(appid.EnvPrefix(context.Background()) + "ADMIN_TOKEN")
}
