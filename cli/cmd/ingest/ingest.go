package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compozy/docqa/cli/cmd"
	"github.com/compozy/docqa/cli/helpers"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/document"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/ingest"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
)

// ErrPartialIngest is returned when at least one file failed to index.
var ErrPartialIngest = errors.New("some documents failed to index")

// NewIngestCommand creates the command that indexes the corpus folder.
func NewIngestCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "ingest",
		Short: "Index the document corpus into the vector index",
		Long: "Read every supported document under the corpus folder, split it into chunks, embed the chunks " +
			"and store them in the vector index. With --watch, changed files are re-indexed until interrupted.",
		RunE: runIngest,
	}
	flags := command.Flags()
	flags.String("folder", "", "Corpus folder to index")
	flags.Int("chunk-size", 0, "Chunk size in characters")
	flags.Int("chunk-overlap", 0, "Overlap between consecutive chunks in characters")
	flags.String("vector-db", "", "Vector index provider: filesystem, pgvector, qdrant or redis")
	flags.String("vector-path", "", "Directory of the filesystem vector index")
	flags.Bool("watch", false, "Keep running and re-index files as they change")
	flags.String("output", "text", "Summary format: text or json")
	return command
}

func runIngest(cobraCmd *cobra.Command, _ []string) error {
	ctx := cobraCmd.Context()
	cfg := config.FromContext(ctx)
	watch, err := cobraCmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}
	outputFlag, err := cobraCmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := helpers.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	knowledge, err := cmd.OpenKnowledge(ctx, cfg)
	if err != nil {
		return err
	}
	defer knowledge.Close(context.WithoutCancel(ctx))
	pipeline, err := NewPipeline(cfg, knowledge.Embedder, knowledge.Store)
	if err != nil {
		return err
	}
	out := cobraCmd.OutOrStdout()
	runErr := RunOnce(ctx, pipeline, cfg.Ingest.Folder, out, format, helpers.ShouldUseColor(out))
	if !watch {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, ErrPartialIngest) {
		return runErr
	}
	return Watch(ctx, pipeline, cfg)
}

// NewPipeline wires the document registry and chunker from cfg into an
// ingestion pipeline over emb and store.
func NewPipeline(cfg *config.Config, emb embedder.Embedder, store vectordb.Store) (*ingest.Pipeline, error) {
	chunker, err := chunk.NewProcessor(chunk.Settings{
		Size:              cfg.Ingest.ChunkSize,
		Overlap:           cfg.Ingest.ChunkOverlap,
		NormalizeNewlines: true,
	})
	if err != nil {
		return nil, err
	}
	return ingest.NewPipeline(document.NewRegistry(), chunker, emb, store, ingest.OptionsFromAppConfig(cfg))
}

// RunOnce indexes folder and writes the summary to out.
func RunOnce(
	ctx context.Context,
	pipeline *ingest.Pipeline,
	folder string,
	out io.Writer,
	format helpers.OutputFormat,
	color bool,
) error {
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return helpers.NewCliError("INVALID_FOLDER", "Corpus folder does not exist or is not a directory", folder)
	}
	result, err := pipeline.IngestCorpus(ctx, folder)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if err := helpers.WriteIngestResult(out, result, format, color); err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPartialIngest, result.Failed, len(result.Files))
	}
	return nil
}

// Watch re-indexes changed files under the configured folder until ctx ends.
func Watch(ctx context.Context, pipeline *ingest.Pipeline, cfg *config.Config) error {
	watcher, err := ingest.NewWatcher(pipeline, cfg.Ingest.Folder, cfg.Ingest.WatchDebounce)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.FromContext(ctx).Info("Watching for document changes, press Ctrl+C to stop")
	return watcher.Run(ctx)
}
