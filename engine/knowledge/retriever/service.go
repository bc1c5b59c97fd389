package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

// DefaultTopK is the number of chunks returned when callers do not ask for more.
const DefaultTopK = 3

// Result is one retrieved chunk with its similarity score.
type Result struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

// FileName returns the source file name recorded at ingestion.
func (r Result) FileName() string {
	name, _ := r.Metadata[chunk.MetaFileName].(string) //nolint:errcheck // missing names render empty
	return name
}

// Options tunes retrieval. MinScore is an opt-in similarity floor; nil keeps
// the nearest TopK chunks regardless of score.
type Options struct {
	TopK       int
	MinScore   *float64
	Collection string
}

type Service struct {
	embedder embedder.Embedder
	store    vectordb.Store
	options  Options
	tracer   trace.Tracer
}

func NewService(emb embedder.Embedder, store vectordb.Store, opts Options) (*Service, error) {
	if emb == nil {
		return nil, errors.New("retriever: embedder is required")
	}
	if store == nil {
		return nil, errors.New("retriever: vector store is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Service{
		embedder: emb,
		store:    store,
		options:  opts,
		tracer:   otel.Tracer("docqa.knowledge.retriever"),
	}, nil
}

// Retrieve embeds query and returns at most k chunks by descending similarity.
// k <= 0 selects the configured default. An empty index yields an empty slice
// and no error.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (results []Result, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("retriever: query is required")
	}
	if k <= 0 {
		k = s.options.TopK
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "docqa.knowledge.retriever.retrieve", trace.WithAttributes(
		attribute.String("collection", s.options.Collection),
		attribute.Int("top_k", k),
	))
	defer s.finishRetrieve(ctx, span, start, &results, &err)

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := s.search(ctx, vector, vectordb.SearchOptions{TopK: k, MinScore: s.options.MinScore})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		knowledge.RecordRetrievalEmpty(ctx, s.options.Collection)
		return []Result{}, nil
	}
	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	results = make([]Result, len(matches))
	for i := range matches {
		results[i] = Result{
			ID:       matches[i].ID,
			Text:     matches[i].Text,
			Score:    matches[i].Score,
			Metadata: core.CloneMap(matches[i].Metadata),
		}
	}
	return results, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "docqa.knowledge.retriever.embed_query")
	defer span.End()
	vector, err := s.embedder.EmbedQuery(spanCtx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vector, nil
}

func (s *Service) search(ctx context.Context, vector []float32, opts vectordb.SearchOptions) ([]vectordb.Match, error) {
	spanCtx, span := s.tracer.Start(ctx, "docqa.knowledge.retriever.vector_search", trace.WithAttributes(
		attribute.Int("top_k", opts.TopK),
	))
	defer span.End()
	matches, err := s.store.Search(spanCtx, vector, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retriever: vector search: %w", err)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (s *Service) finishRetrieve(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	results *[]Result,
	runErr *error,
) {
	duration := time.Since(start)
	knowledge.RecordQueryLatency(ctx, s.options.Collection, duration)
	log := logger.FromContext(ctx)
	if runErr != nil && *runErr != nil {
		err := *runErr
		log.Error("Retrieval failed", "error", err, "duration_seconds", duration.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	total := len(*results)
	log.Debug("Retrieval finished", "results", total, "duration_seconds", duration.Seconds())
	span.SetAttributes(attribute.Int("results", total))
	span.End()
}

func sortMatches(matches []vectordb.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}
