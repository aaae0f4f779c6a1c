package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/compiledanswers/policy-rag/internal/config"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
	"github.com/compiledanswers/policy-rag/internal/core/usecase"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/chunking"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/cleaning"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/llm/openai"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/queue/nats"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/repository/postgres"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/resilience"
	"github.com/compiledanswers/policy-rag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Source   ports.PolicyDocumentSource
	QuerySvc ports.QueryService
	IngestUC ports.RootProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewPolicyRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	llmClient := openai.New(openai.Config{
		BaseURL:         cfg.OpenAIBaseURL,
		APIKey:          cfg.OpenAIAPIKey,
		EmbedModel:      cfg.OpenAIEmbedModel,
		CompletionModel: cfg.OpenAICompletionModel,
		Temperature:     cfg.CompletionTemperature,
		MaxTokens:       cfg.CompletionMaxTokens,
		TopP:            cfg.CompletionTopP,
	}, executor)
	embedder := openai.NewEmbedder(llmClient)
	completer := openai.NewCompleter(llmClient)

	store := qdrant.New(cfg.QdrantURL, cfg.QdrantSummaryCollection, cfg.QdrantChunkCollection)

	searcher := usecase.NewSearchOrchestrator(embedder, store, usecase.SearchConfig{
		SummaryTopK:       cfg.SearchSummaryTopK,
		AnchoredChunkTopK: cfg.SearchChunkTopK,
		FallbackChunkTopK: cfg.SearchFallbackTopK,
		SufficiencyFloor:  cfg.SearchMinChunks,
		RefillChunkTopK:   cfg.SearchRefillTopK,
	}, logger)
	synthesizer := usecase.NewResponseSynthesizer(completer, logger)
	pipeline := usecase.NewQueryPipeline(searcher, synthesizer, logger)

	cleaner := cleaning.New()
	chunker := chunking.NewSemanticChunker(
		completer,
		chunking.NewWindowSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		logger,
	)
	ingestUC := usecase.NewRootIngestUseCase(repo, cleaner, chunker, embedder, completer, store, logger)

	return &App{
		Config: cfg,

		Queue:    queue,
		Source:   repo,
		QuerySvc: pipeline,
		IngestUC: ingestUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// BackpressureWait converts the configured milliseconds once, here, so both
// mains agree on the unit.
func (a *App) BackpressureWait() time.Duration {
	return time.Duration(a.Config.APIBackpressureWaitMS) * time.Millisecond
}
