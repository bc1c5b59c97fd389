package ingest

import (
	"time"

	"github.com/compozy/docqa/engine/core"
	appconfig "github.com/compozy/docqa/pkg/config"
)

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
	defaultDebounce    = 500 * time.Millisecond
)

// Options controls ingestion execution details provided by callers.
type Options struct {
	Patterns    []string
	BatchSize   int
	Concurrency int
	Collection  string
	Retry       core.RetryPolicy
	// OnFile, when set, is invoked once per processed file.
	OnFile func(FileResult)
}

// OptionsFromAppConfig derives pipeline options from the ingest section.
func OptionsFromAppConfig(cfg *appconfig.Config) Options {
	return Options{
		Patterns:   append([]string(nil), cfg.Ingest.Patterns...),
		BatchSize:  cfg.Ingest.BatchSize,
		Collection: cfg.VectorDB.Collection,
		Retry: core.RetryPolicy{
			Attempts:   cfg.Embedder.Retry.Attempts,
			Backoff:    cfg.Embedder.Retry.Backoff,
			MaxBackoff: cfg.Embedder.Retry.MaxBackoff,
		},
	}
}

func (o Options) normalized() Options {
	if len(o.Patterns) == 0 {
		o.Patterns = []string{"**/*"}
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.Retry.Attempts <= 0 {
		o.Retry.Attempts = 1
	}
	return o
}
