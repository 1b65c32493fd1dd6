package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
	"github.com/namelens/guildrest/internal/core/store"
	"github.com/namelens/guildrest/internal/metrics"
	"github.com/namelens/guildrest/internal/observability"
)

// dispatchRuntime bundles what a dispatching command needs.
type dispatchRuntime struct {
	cfg        *config.Config
	catalog    *route.Catalog
	store      store.Backend
	dispatcher *engine.Dispatcher
}

func loadCatalog(cfg *config.Config) (*route.Catalog, error) {
	catalog := route.DefaultCatalog()
	path := strings.TrimSpace(cfg.Dispatch.RoutesFile)
	if path == "" {
		return catalog, nil
	}
	added, err := route.LoadCatalogFile(catalog, path)
	if err != nil {
		return nil, fmt.Errorf("load routes file: %w", err)
	}
	observability.DispatchLogger().Debug("Loaded routes file",
		zap.String("path", path),
		zap.Int("routes", added))
	return catalog, nil
}

// newDispatchRuntime wires the dispatcher from configuration. Telemetry is
// attached only when withMetrics is set.
func newDispatchRuntime(ctx context.Context, cfg *config.Config, withMetrics bool) (*dispatchRuntime, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	logger := observability.DispatchLogger()
	backend := optionalStore(ctx, cfg.Store, logger)

	opts := engine.DefaultOptions()
	opts.MaxRetries = cfg.Dispatch.MaxRetries
	opts.GlobalRate = cfg.Dispatch.GlobalRate
	opts.GlobalBurst = cfg.Dispatch.GlobalBurst
	opts.Logger = logger
	opts.Executor = &engine.HTTPExecutor{Client: &http.Client{Timeout: cfg.API.HTTPTimeout}}
	if backend != nil {
		opts.Store = backend
	}
	if withMetrics {
		opts.Observer = metrics.DispatchObserver{}
	}

	dispatcher, err := engine.NewDispatcher(engine.Config{
		BaseURL:   cfg.API.BaseURL,
		Token:     cfg.API.Token,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
	}, opts)
	if err != nil {
		if backend != nil {
			_ = backend.Close()
		}
		return nil, err
	}

	return &dispatchRuntime{cfg: cfg, catalog: catalog, store: backend, dispatcher: dispatcher}, nil
}

func (r *dispatchRuntime) Close() {
	r.dispatcher.Close()
	if r.store != nil {
		_ = r.store.Close()
	}
}
