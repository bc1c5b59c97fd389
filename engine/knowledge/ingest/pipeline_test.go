package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/document"
	"github.com/compozy/docqa/engine/knowledge/knowledgetest"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
)

const testDim = 64

type fixture struct {
	pipeline *Pipeline
	store    vectordb.Store
	embedder *knowledgetest.HashEmbedder
	dir      string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	chunker, err := chunk.NewProcessor(chunk.Settings{Size: chunk.DefaultSize, Overlap: chunk.DefaultOverlap})
	require.NoError(t, err)
	emb := knowledgetest.NewHashEmbedder(testDim)
	store := vectordb.NewMemoryStore(testDim)
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"**/*"}
	}
	pipeline, err := NewPipeline(document.NewRegistry(".txt", ".md"), chunker, emb, store, opts)
	require.NoError(t, err)
	return &fixture{pipeline: pipeline, store: store, embedder: emb, dir: t.TempDir()}
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type flakyStore struct {
	vectordb.Store
	mu         sync.Mutex
	failUpsert bool
}

func (s *flakyStore) Upsert(ctx context.Context, records []vectordb.Record) error {
	s.mu.Lock()
	fail := s.failUpsert
	s.mu.Unlock()
	if fail {
		return errors.New("index unavailable")
	}
	return s.Store.Upsert(ctx, records)
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestNewPipeline(t *testing.T) {
	t.Run("Should require every collaborator", func(t *testing.T) {
		chunker, err := chunk.NewProcessor(chunk.Settings{Size: 100, Overlap: 10})
		require.NoError(t, err)
		_, err = NewPipeline(nil, chunker, knowledgetest.NewHashEmbedder(4), vectordb.NewMemoryStore(4), Options{})
		assert.ErrorContains(t, err, "document reader")
		_, err = NewPipeline(document.NewRegistry(), nil, knowledgetest.NewHashEmbedder(4), vectordb.NewMemoryStore(4), Options{})
		assert.ErrorContains(t, err, "chunker")
		_, err = NewPipeline(document.NewRegistry(), chunker, nil, vectordb.NewMemoryStore(4), Options{})
		assert.ErrorContains(t, err, "embedder")
		_, err = NewPipeline(document.NewRegistry(), chunker, knowledgetest.NewHashEmbedder(4), nil, Options{})
		assert.ErrorContains(t, err, "vector store")
	})
}

func TestPipelineIngestCorpus(t *testing.T) {
	ctx := context.Background()
	t.Run("Should index supported files and isolate per file failures", func(t *testing.T) {
		var mu sync.Mutex
		signals := make(map[string]Outcome)
		f := newFixture(t, Options{OnFile: func(r FileResult) {
			mu.Lock()
			defer mu.Unlock()
			signals[filepath.Base(r.Path)] = r.Outcome
		}})
		f.embedder.FailOn = "EXPLODE"
		f.write(t, "france.txt", "Paris is the capital of France.")
		f.write(t, "nested/germany.md", "Berlin is the capital of Germany.")
		f.write(t, "empty.txt", "   \n ")
		f.write(t, "broken.txt", "This one will EXPLODE during embedding.")
		f.write(t, "image.png", "\x89PNG\r\n\x1a\n")

		result, err := f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Indexed)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 2, result.Chunks)
		assert.Len(t, result.Files, 4)
		assert.Equal(t, 2, f.count(t))
		assert.Equal(t, map[string]Outcome{
			"france.txt": OutcomeIndexed,
			"germany.md": OutcomeIndexed,
			"empty.txt":  OutcomeSkipped,
			"broken.txt": OutcomeFailed,
		}, signals)
		for _, r := range result.Files {
			if r.Outcome == OutcomeSkipped {
				assert.True(t, core.IsEmptyDocument(r.Err))
			}
			if r.Outcome == OutcomeFailed {
				assert.ErrorIs(t, r.Err, knowledgetest.ErrInjected)
			}
		}
	})
	t.Run("Should attach file metadata to every stored chunk", func(t *testing.T) {
		f := newFixture(t, Options{})
		path := f.write(t, "long.txt", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40))
		_, err := f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		query, err := f.embedder.EmbedQuery(ctx, "quick brown fox")
		require.NoError(t, err)
		matches, err := f.store.Search(ctx, query, vectordb.SearchOptions{TopK: 10})
		require.NoError(t, err)
		require.Greater(t, len(matches), 1)
		for _, m := range matches {
			assert.Equal(t, "long.txt", m.Metadata[chunk.MetaFileName])
			assert.Equal(t, path, m.Metadata[chunk.MetaFilePath])
			assert.LessOrEqual(t, len([]rune(m.Text)), chunk.DefaultSize)
		}
	})
	t.Run("Should be idempotent across repeated runs", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.write(t, "a.txt", strings.Repeat("alpha beta gamma delta ", 80))
		first, err := f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		before := f.count(t)
		assert.Equal(t, first.Chunks, before)
		_, err = f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		assert.Equal(t, before, f.count(t))
	})
	t.Run("Should replace chunks when a file shrinks", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.write(t, "a.txt", strings.Repeat("alpha beta gamma delta ", 80))
		_, err := f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		require.Greater(t, f.count(t), 1)
		f.write(t, "a.txt", "just one short line")
		_, err = f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		assert.Equal(t, 1, f.count(t))
	})
	t.Run("Should embed every chunk exactly once", func(t *testing.T) {
		f := newFixture(t, Options{BatchSize: 2})
		f.write(t, "a.txt", strings.Repeat("alpha beta gamma delta ", 80))
		result, err := f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		assert.Equal(t, result.Chunks, f.embedder.Calls())
	})
	t.Run("Should fail when the folder does not exist", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.pipeline.IngestCorpus(ctx, filepath.Join(f.dir, "missing"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("Should stop when the context is canceled", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.write(t, "a.txt", "alpha")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.pipeline.IngestCorpus(cctx, f.dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPipelineIngestFile(t *testing.T) {
	ctx := context.Background()
	t.Run("Should keep the previous chunks when storing the new version fails", func(t *testing.T) {
		chunker, err := chunk.NewProcessor(chunk.Settings{Size: chunk.DefaultSize, Overlap: chunk.DefaultOverlap})
		require.NoError(t, err)
		store := &flakyStore{Store: vectordb.NewMemoryStore(testDim)}
		pipeline, err := NewPipeline(
			document.NewRegistry(".txt"),
			chunker,
			knowledgetest.NewHashEmbedder(testDim),
			store,
			Options{Patterns: []string{"**/*"}, Retry: core.RetryPolicy{Attempts: 1}},
		)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(path, []byte("the original wording"), 0o600))
		require.Equal(t, OutcomeIndexed, pipeline.IngestFile(ctx, path).Outcome)

		require.NoError(t, os.WriteFile(path, []byte("a rewritten paragraph"), 0o600))
		store.mu.Lock()
		store.failUpsert = true
		store.mu.Unlock()
		result := pipeline.IngestFile(ctx, path)
		assert.Equal(t, OutcomeFailed, result.Outcome)
		require.Error(t, result.Err)
		assert.Contains(t, result.Err.Error(), "index unavailable")

		matches, err := store.Search(ctx, make([]float32, testDim), vectordb.SearchOptions{TopK: 5})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "the original wording", matches[0].Text)
	})
	t.Run("Should swap in the new chunks once they are stored", func(t *testing.T) {
		f := newFixture(t, Options{})
		path := f.write(t, "a.txt", "the original wording")
		require.Equal(t, OutcomeIndexed, f.pipeline.IngestFile(ctx, path).Outcome)
		f.write(t, "a.txt", "a rewritten paragraph")
		require.Equal(t, OutcomeIndexed, f.pipeline.IngestFile(ctx, path).Outcome)
		matches, err := f.store.Search(ctx, make([]float32, testDim), vectordb.SearchOptions{TopK: 5})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a rewritten paragraph", matches[0].Text)
	})
}

func TestPipelineRemoveFile(t *testing.T) {
	t.Run("Should drop only the chunks of the removed file", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, Options{})
		a := f.write(t, "a.txt", "alpha text")
		f.write(t, "b.txt", "beta text")
		_, err := f.pipeline.IngestCorpus(ctx, f.dir)
		require.NoError(t, err)
		require.Equal(t, 2, f.count(t))
		require.NoError(t, f.pipeline.RemoveFile(ctx, a))
		assert.Equal(t, 1, f.count(t))
	})
}
