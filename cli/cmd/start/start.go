package start

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/compozy/docqa/cli/cmd"
	"github.com/compozy/docqa/cli/helpers"
	"github.com/compozy/docqa/engine/infra/server"
	"github.com/compozy/docqa/engine/knowledge/retriever"
	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
	"github.com/compozy/docqa/engine/qa"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
	"github.com/compozy/docqa/pkg/version"
)

const (
	productionEnvironment = "production"
	localhost             = "localhost"
)

// NewStartCommand creates the command that serves the question endpoints.
func NewStartCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "start",
		Aliases: []string{"serve"},
		Short:   "Start the question answering server",
		Long:    "Serve the single-turn and conversational ask endpoints over the indexed corpus",
		RunE:    runStart,
	}
	flags := command.Flags()
	flags.String("host", "", "Host interface to bind")
	flags.Int("port", 0, "Port to listen on")
	flags.String("mode", "", "Variant served on /ask: single or conversational")
	flags.String("llm-provider", "", "Chat model provider: groq, google, openai or mock")
	flags.String("llm-model", "", "Chat model name")
	flags.String("vector-db", "", "Vector index provider: filesystem, pgvector, qdrant or redis")
	flags.String("vector-path", "", "Directory of the filesystem vector index")
	flags.Int("top-k", 0, "Number of chunks retrieved per question")
	return command
}

func runStart(cobraCmd *cobra.Command, _ []string) error {
	ctx := cobraCmd.Context()
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	if cfg.Runtime.Environment == productionEnvironment {
		gin.SetMode(gin.ReleaseMode)
		logProductionWarnings(ctx, cfg)
	}
	if err := helpers.EnsurePortAvailable(ctx, cfg.Server.Host, cfg.Server.Port); err != nil {
		return err
	}
	knowledge, err := cmd.OpenKnowledge(ctx, cfg)
	if err != nil {
		return err
	}
	defer knowledge.Close(context.WithoutCancel(ctx))
	llm, err := llmadapter.NewClient(ctx, llmadapter.FromAppConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer func() {
		if err := llm.Close(); err != nil {
			log.Warn("Failed to close LLM client", "error", err)
		}
	}()
	ret, err := retriever.NewService(knowledge.Embedder, knowledge.Store, retriever.Options{
		TopK:       cfg.QA.TopK,
		Collection: cfg.VectorDB.Collection,
	})
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}
	orchestrator, err := qa.NewOrchestrator(llm, ret, qa.Options{
		HistoryWindow:     cfg.QA.HistoryWindow,
		MaxQuestionLength: cfg.QA.MaxQuestionLength,
		TopK:              cfg.QA.TopK,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if count, err := knowledge.Store.Count(ctx); err == nil && count == 0 {
		log.Warn("Vector index is empty; run `docqa ingest` before asking questions",
			"vector_db", cfg.VectorDB.Provider)
	}
	knowledge.Monitoring.RegisterIndexSize(ctx, knowledge.Store.Count)
	srv, err := server.NewServer(ctx, cfg, server.Dependencies{
		Asker:      orchestrator,
		Index:      knowledge.Store,
		Monitoring: knowledge.Monitoring,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	log.Info("Starting docqa server",
		"version", version.Get().Version,
		"mode", cfg.Server.Mode,
		"llm", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)
	return srv.Run(ctx)
}

func logProductionWarnings(ctx context.Context, cfg *config.Config) {
	log := logger.FromContext(ctx)
	if cfg.LLM.Provider == string(llmadapter.ProviderMock) {
		log.Warn("The mock LLM provider is configured in production")
	}
	for _, origin := range cfg.Server.CORS.AllowedOrigins {
		if origin == "*" || strings.Contains(origin, localhost) {
			log.Warn("CORS allows any or localhost origins in production", "origin", origin)
			break
		}
	}
	if !cfg.RateLimit.Enabled {
		log.Warn("Rate limiting is disabled; consider ratelimit.enabled=true")
	}
}
