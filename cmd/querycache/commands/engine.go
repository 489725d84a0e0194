// Package commands implements the querycache CLI subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crumbworks/querycache/pkg/cache"
	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/embedding"
	"github.com/crumbworks/querycache/pkg/observability/logging"
	"github.com/crumbworks/querycache/pkg/observability/tracing"
)

// buildEngine wires config, logging, tracing, the embedding provider and the
// similarity store into a ready engine. The returned shutdown function closes
// everything in reverse order.
func buildEngine(cmd *cobra.Command) (*cache.QueryCache, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}

	if _, err := logging.InitLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Logging.Development,
		AddCaller:   cfg.Logging.AddCaller,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	if err := tracing.InitTracing(ctx, tracing.Config{
		Enabled:          cfg.Tracing.Enabled,
		ExporterType:     cfg.Tracing.ExporterType,
		ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
		ExporterInsecure: cfg.Tracing.ExporterInsecure,
		SamplingRate:     cfg.Tracing.SamplingRate,
		ServiceName:      cfg.Tracing.ServiceName,
		ServiceVersion:   cfg.Tracing.ServiceVersion,
	}); err != nil {
		logging.Warnf("Failed to initialize tracing, continuing without it: %v", err)
	}

	provider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	store, err := cache.NewSimilarityStore(cfg.Cache, provider.Dimensions())
	if err != nil {
		provider.Close()
		return nil, nil, fmt.Errorf("failed to create similarity store: %w", err)
	}

	engine := cache.NewQueryCache(store, provider, cache.EngineOptions{
		Settings: cfg.Cache,
		Warm:     cfg.Warm,
	})

	shutdown := func() {
		if err := engine.Close(); err != nil {
			logging.Warnf("Failed to close cache engine: %v", err)
		}
		if err := tracing.ShutdownTracing(context.Background()); err != nil {
			logging.Warnf("Failed to shut down tracing: %v", err)
		}
	}
	return engine, shutdown, nil
}
