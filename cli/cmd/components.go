package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/docqa/engine/infra/monitoring"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
)

// Knowledge bundles the embedder and vector index shared by the serve and
// ingest commands. Both are built once per process and released by Close.
type Knowledge struct {
	Embedder   *embedder.Adapter
	Store      vectordb.Store
	Monitoring *monitoring.Service
}

// OpenKnowledge validates credentials and connects the embedding service and
// the configured vector index. Metrics are installed globally first so the
// knowledge instruments bind to the exporter.
func OpenKnowledge(ctx context.Context, cfg *config.Config) (*Knowledge, error) {
	if cfg == nil {
		return nil, errors.New("configuration missing from context")
	}
	if err := config.ValidateCredentials(cfg); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	mon := monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.FromAppConfig(cfg.Monitoring))
	mon.SetAsGlobal()
	emb, err := embedder.New(ctx, embedder.FromAppConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	store, err := vectordb.New(ctx, vectordb.FromAppConfig(cfg.VectorDB))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	log.Info("Knowledge components ready",
		"embedder", cfg.Embedder.Provider,
		"model", cfg.Embedder.Model,
		"vector_db", cfg.VectorDB.Provider,
		"collection", cfg.VectorDB.Collection,
	)
	return &Knowledge{Embedder: emb, Store: store, Monitoring: mon}, nil
}

// Close releases the vector index and flushes metrics.
func (k *Knowledge) Close(ctx context.Context) {
	if k == nil {
		return
	}
	log := logger.FromContext(ctx)
	if k.Store != nil {
		if err := k.Store.Close(ctx); err != nil {
			log.Warn("Failed to close vector index", "error", err)
		}
	}
	if k.Monitoring != nil {
		if err := k.Monitoring.Shutdown(ctx); err != nil {
			log.Warn("Failed to shutdown monitoring", "error", err)
		}
	}
}
