package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarryhq/quarry/internal/async"
	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/embed"
	"github.com/quarryhq/quarry/internal/pattern"
	"github.com/quarryhq/quarry/internal/rerank"
	"github.com/quarryhq/quarry/internal/retrieval"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/telemetry"
)

// app holds the wired engine for one CLI invocation.
type app struct {
	cfg          *config.Config
	store        *store.Store
	categories   *store.CategoryRegistry
	embedder     embed.Embedder
	rerankClient rerank.Client
	orchestrator *retrieval.Orchestrator
	reinforcer   *pattern.Reinforcer
	syncer       *async.PatternSyncer
	metrics      *telemetry.Collector
	watcher      *config.Watcher
	logger       *slog.Logger
}

// buildApp loads config and constructs the full engine. The adapter set is
// enumerated once here; nothing downstream branches on backend names.
func buildApp(ctx context.Context, offline bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	a := &app{cfg: cfg, logger: logger}

	a.embedder = buildEmbedder(ctx, cfg, offline, logger)

	a.store, err = store.Open(store.Config{
		DataDir:          cfg.DataDir,
		KeywordBackend:   cfg.Search.KeywordBackend,
		VectorDimensions: a.embedder.Dimensions(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.categories = store.NewCategoryRegistry(a.store)

	if cfg.Rerank.Enabled && !offline {
		client, err := rerank.NewHTTPClient(ctx, rerank.Config{
			Endpoint: cfg.Rerank.Endpoint,
			Model:    cfg.Rerank.Model,
			Timeout:  cfg.Rerank.Timeout,
		})
		if err != nil {
			logger.Warn("reranking service unavailable, results keep fused order", "error", err)
		} else {
			a.rerankClient = client
		}
	}

	var adapters []retrieval.SourceAdapter
	for _, id := range cfg.Sources.Enabled {
		switch id {
		case config.SourceRelational:
			adapters = append(adapters, retrieval.NewRelationalAdapter(a.store, cfg.Search, logger))
		case config.SourceSemantic:
			if offline {
				continue
			}
			adapters = append(adapters, retrieval.NewSemanticAdapter(retrieval.SemanticAdapterConfig{
				Endpoint: cfg.Sources.SemanticEndpoint,
				APIKey:   cfg.Sources.SemanticAPIKey,
			}))
		case config.SourceGraph:
			adapters = append(adapters, retrieval.NewGraphAdapter(a.store))
		}
	}
	if len(adapters) == 0 {
		a.Close()
		return nil, fmt.Errorf("no retrieval sources enabled")
	}

	a.watcher = config.NewWatcher(configDir, cfg)
	if err := a.watcher.Start(ctx); err != nil {
		logger.Warn("config watcher disabled", "error", err)
		a.watcher = nil
	}

	a.metrics = telemetry.NewCollector()

	opts := []retrieval.OrchestratorOption{
		retrieval.WithEmbedder(a.embedder),
		retrieval.WithReranker(retrieval.NewReranker(a.rerankClient, logger)),
		retrieval.WithRecorder(a.metrics),
		retrieval.WithCategoryResolver(a.categories),
	}
	if a.watcher != nil {
		opts = append(opts, retrieval.WithTunables(a.watcher.Tunables))
	}
	a.orchestrator = retrieval.NewOrchestrator(adapters, cfg.Search, logger, opts...)

	var notifier pattern.Notifier
	if cfg.Sync.Enabled && cfg.Sources.SemanticEndpoint != "" && !offline {
		a.syncer = async.NewPatternSyncer(async.Config{
			Endpoint:  cfg.Sources.SemanticEndpoint,
			APIKey:    cfg.Sources.SemanticAPIKey,
			QueueSize: cfg.Sync.QueueSize,
		}, logger)
		notifier = a.syncer
	}
	a.reinforcer = pattern.NewReinforcer(a.store, notifier, logger)

	return a, nil
}

// buildEmbedder tries the configured embedding service and falls back to
// the deterministic static embedder so search keeps working offline.
func buildEmbedder(ctx context.Context, cfg *config.Config, offline bool, logger *slog.Logger) embed.Embedder {
	var inner embed.Embedder
	if !offline {
		httpEmbedder, err := embed.NewHTTPEmbedder(ctx, embed.HTTPConfig{
			Endpoint:   cfg.Embedding.Endpoint,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			logger.Warn("embedding service unavailable, using static embeddings", "error", err)
		} else {
			inner = httpEmbedder
		}
	}
	if inner == nil {
		inner = embed.NewStaticEmbedder()
	}
	return embed.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
}

// Close releases everything buildApp opened, in reverse order.
func (a *app) Close() {
	if a.syncer != nil {
		_ = a.syncer.Close()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.rerankClient != nil {
		_ = a.rerankClient.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
}
