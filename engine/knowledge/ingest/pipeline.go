package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

// DocumentReader loads a file into a chunkable document.
type DocumentReader interface {
	Supporter
	Read(ctx context.Context, path string) (chunk.Document, error)
}

// Outcome classifies how a single file ended.
type Outcome string

const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// FileResult is the completion signal for one file.
type FileResult struct {
	Path    string
	Outcome Outcome
	Chunks  int
	Err     error
}

// Result summarizes a corpus run.
type Result struct {
	Files   []FileResult
	Indexed int
	Skipped int
	Failed  int
	Chunks  int
}

type Pipeline struct {
	reader   DocumentReader
	chunker  *chunk.Processor
	embedder embedder.Embedder
	store    vectordb.Store
	options  Options
	// fileLocks serializes replace cycles of the same file.
	fileLocks sync.Map
}

func NewPipeline(
	reader DocumentReader,
	chunker *chunk.Processor,
	emb embedder.Embedder,
	store vectordb.Store,
	opts Options,
) (*Pipeline, error) {
	if reader == nil {
		return nil, errors.New("ingest: document reader is required")
	}
	if chunker == nil {
		return nil, errors.New("ingest: chunker is required")
	}
	if emb == nil {
		return nil, errors.New("ingest: embedder implementation is required")
	}
	if store == nil {
		return nil, errors.New("ingest: vector store is required")
	}
	return &Pipeline{
		reader:   reader,
		chunker:  chunker,
		embedder: emb,
		store:    store,
		options:  opts.normalized(),
	}, nil
}

// IngestCorpus indexes every supported file under folder. Per-file failures
// are recorded in the result and never abort the run.
func (p *Pipeline) IngestCorpus(ctx context.Context, folder string) (*Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	files, err := Enumerate(ctx, folder, p.options.Patterns, p.reader)
	if err != nil {
		return nil, err
	}
	log.Info("Starting corpus ingestion", "folder", folder, "files", len(files))
	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.options.Concurrency)
	for i, path := range files {
		g.Go(func() error {
			results[i] = p.IngestFile(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest: corpus run interrupted: %w", err)
	}
	summary := &Result{Files: results}
	for i := range results {
		switch results[i].Outcome {
		case OutcomeIndexed:
			summary.Indexed++
			summary.Chunks += results[i].Chunks
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	knowledge.RecordIngestDuration(ctx, "corpus", time.Since(start))
	log.Info(
		"Corpus ingestion completed",
		"folder", folder,
		"indexed", summary.Indexed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"chunks", summary.Chunks,
		"duration", time.Since(start),
	)
	return summary, nil
}

// IngestFile reads, chunks, embeds and stores one file, replacing the chunks
// previously stored for the same path. Old chunks are removed only after the
// new ones are stored, so a failed run leaves the previous version searchable.
func (p *Pipeline) IngestFile(ctx context.Context, path string) FileResult {
	start := time.Now()
	log := logger.FromContext(ctx).With("file", path)
	result := p.ingestFile(ctx, path)
	knowledge.RecordIngestFile(ctx, string(result.Outcome))
	knowledge.RecordIngestDuration(ctx, "file", time.Since(start))
	switch result.Outcome {
	case OutcomeIndexed:
		knowledge.RecordIngestChunks(ctx, p.options.Collection, result.Chunks)
		log.Info("Indexed document", "chunks", result.Chunks)
	case OutcomeSkipped:
		log.Warn("Skipped document", "reason", result.Err)
	default:
		log.Error("Failed to index document", "error", result.Err)
	}
	if p.options.OnFile != nil {
		p.options.OnFile(result)
	}
	return result
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) FileResult {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileResult{Path: path, Outcome: OutcomeFailed, Err: err}
	}
	result := FileResult{Path: abs}
	doc, err := p.reader.Read(ctx, abs)
	if err != nil {
		return withError(result, err)
	}
	chunks, err := p.chunker.Split(doc.Text, doc.Metadata)
	if err != nil {
		return withError(result, err)
	}
	records, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return withError(result, err)
	}
	unlock := p.lockFile(abs)
	defer unlock()
	if err := p.upsert(ctx, records); err != nil {
		return withError(result, err)
	}
	current := make([]string, len(records))
	for i := range records {
		current[i] = records[i].ID
	}
	stale := vectordb.Filter{Metadata: map[string]string{chunk.MetaFilePath: abs}, Keep: current}
	if err := p.store.Delete(ctx, stale); err != nil {
		return withError(result, fmt.Errorf("ingest: remove stale chunks: %w", err))
	}
	result.Outcome = OutcomeIndexed
	result.Chunks = len(records)
	return result
}

// RemoveFile drops every chunk stored for path.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	unlock := p.lockFile(abs)
	defer unlock()
	if err := p.store.Delete(ctx, vectordb.Filter{Metadata: map[string]string{chunk.MetaFilePath: abs}}); err != nil {
		return fmt.Errorf("ingest: remove chunks for %q: %w", abs, err)
	}
	logger.FromContext(ctx).Info("Removed document from index", "file", abs)
	return nil
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([]vectordb.Record, error) {
	records := make([]vectordb.Record, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.options.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+p.options.BatchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("ingest: embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i := range batch {
			records = append(records, vectordb.Record{
				ID:        batch[i].ID,
				Text:      batch[i].Text,
				Embedding: vectors[i],
				Metadata:  core.CloneMap(batch[i].Metadata),
			})
		}
	}
	return records, nil
}

func (p *Pipeline) upsert(ctx context.Context, records []vectordb.Record) error {
	err := retry.Do(ctx, p.options.Retry.Strategy(), func(ctx context.Context) error {
		if err := p.store.Upsert(ctx, records); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ingest: persist vectors failed: %w", err)
	}
	return nil
}

func (p *Pipeline) lockFile(path string) func() {
	v, _ := p.fileLocks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex) //nolint:forcetypeassert // only *sync.Mutex is stored
	mu.Lock()
	return mu.Unlock
}

func withError(result FileResult, err error) FileResult {
	result.Err = err
	if core.IsEmptyDocument(err) {
		result.Outcome = OutcomeSkipped
		return result
	}
	result.Outcome = OutcomeFailed
	return result
}
