package vectordb

import (
	"context"
	"time"

	appconfig "github.com/compozy/docqa/pkg/config"
)

// Provider enumerates supported vector database backends.
type Provider string

const (
	// ProviderFilesystem persists a JSON snapshot under Config.Path. It is the default.
	ProviderFilesystem Provider = "filesystem"
	// ProviderPGVector stores records in a Postgres table with a pgvector column.
	ProviderPGVector Provider = "pgvector"
	// ProviderQdrant talks to a Qdrant collection over its REST API.
	ProviderQdrant Provider = "qdrant"
	// ProviderRedis keeps records in Redis hashes and ranks them client side.
	ProviderRedis Provider = "redis"
	// ProviderMemory keeps records in process only.
	ProviderMemory Provider = "memory"
)

const defaultTopK = 3

// Record represents a chunk persisted to the vector store.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchOptions controls similarity search execution. A nil MinScore
// disables the similarity threshold so the nearest TopK matches are returned
// whatever their score.
type SearchOptions struct {
	TopK     int
	MinScore *float64
	Filters  map[string]string
}

// belowThreshold reports whether score falls under an enabled threshold.
func (o SearchOptions) belowThreshold(score float64) bool {
	return o.MinScore != nil && score < *o.MinScore
}

// Match captures a similarity search result. Score is the cosine similarity.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Filter specifies delete criteria. IDs take precedence over Metadata. Keep
// only applies to metadata deletes and lists record IDs that survive them.
type Filter struct {
	IDs      []string
	Metadata map[string]string
	Keep     []string
}

func (f Filter) keepSet() map[string]struct{} {
	if len(f.Keep) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(f.Keep))
	for _, id := range f.Keep {
		set[id] = struct{}{}
	}
	return set
}

// Store is the contract shared by ingestion and retrieval. Search never returns
// more than TopK matches and orders them by descending score.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Delete(ctx context.Context, filter Filter) error
	Count(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// Config captures normalized connection details for a vector database.
type Config struct {
	ID       string
	Provider Provider
	// DSN is the connection string for pgvector and redis, or the base URL for qdrant.
	DSN    string
	APIKey string
	// Path is the snapshot directory of the filesystem provider.
	Path string
	// Collection names the table, collection, key prefix or snapshot file.
	Collection string
	// Dimension is the embedding width every record and query must match.
	Dimension int
	// MaxTopK caps SearchOptions.TopK. Zero means no cap.
	MaxTopK int
	Timeout time.Duration
	// EnsureIndex creates the table, collection or index on open when missing.
	EnsureIndex bool
}

// FromAppConfig converts the vector_db section of the application config.
func FromAppConfig(cfg appconfig.VectorDBConfig) *Config {
	return &Config{
		ID:          cfg.Provider + ":" + cfg.Collection,
		Provider:    Provider(cfg.Provider),
		DSN:         cfg.DSN.Value(),
		APIKey:      cfg.APIKey.Value(),
		Path:        cfg.Path,
		Collection:  cfg.Collection,
		Dimension:   cfg.Dimension,
		MaxTopK:     cfg.MaxTopK,
		Timeout:     cfg.Timeout,
		EnsureIndex: true,
	}
}
