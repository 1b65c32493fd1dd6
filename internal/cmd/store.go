package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/namelens/guildrest/internal/config"
	"github.com/namelens/guildrest/internal/core/store"
	"github.com/namelens/guildrest/internal/observability"
)

// openStore opens and migrates the configured bucket store. It returns a nil
// backend when persistence is disabled.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	backend, err := store.Open(ctx, cfg)
	if errors.Is(err, store.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := backend.Migrate(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("migrate %s store: %w", backend.Driver(), err)
	}
	return backend, nil
}

// requireStore is openStore for commands that only make sense with a store.
func requireStore(ctx context.Context) (store.Backend, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	backend, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("bucket store is disabled (store.driver: none)")
	}
	return backend, nil
}

// optionalStore degrades to no persistence when the store cannot be opened.
func optionalStore(ctx context.Context, cfg config.StoreConfig, logger observability.FieldLogger) store.Backend {
	backend, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("Bucket store unavailable, continuing without persistence",
			zap.String("driver", cfg.Driver),
			zap.Error(err))
		return nil
	}
	return backend
}
