package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
)

// SearchConfig carries the retrieval tuning knobs. The defaults mirror the
// values the strategy was tuned with; none of them is a structural invariant.
type SearchConfig struct {
	SummaryTopK       int
	AnchoredChunkTopK int
	FallbackChunkTopK int
	SufficiencyFloor  int
	RefillChunkTopK   int
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		SummaryTopK:       5,
		AnchoredChunkTopK: 10,
		FallbackChunkTopK: 5,
		SufficiencyFloor:  3,
		RefillChunkTopK:   10,
	}
}

func (c SearchConfig) normalize() SearchConfig {
	out := c
	def := DefaultSearchConfig()
	if out.SummaryTopK <= 0 {
		out.SummaryTopK = def.SummaryTopK
	}
	if out.AnchoredChunkTopK <= 0 {
		out.AnchoredChunkTopK = def.AnchoredChunkTopK
	}
	if out.FallbackChunkTopK <= 0 {
		out.FallbackChunkTopK = def.FallbackChunkTopK
	}
	if out.SufficiencyFloor <= 0 {
		out.SufficiencyFloor = def.SufficiencyFloor
	}
	if out.RefillChunkTopK <= 0 {
		out.RefillChunkTopK = def.RefillChunkTopK
	}
	return out
}

// SearchOrchestrator executes the summary-first hybrid retrieval strategy:
// whole-topic summaries are the primary relevance signal, chunk evidence is
// anchored to the matched topics, and two fallback tiers guard against
// sparse results. Every vector-search stage is independently fault tolerant;
// a failed stage degrades to zero results instead of aborting the query.
type SearchOrchestrator struct {
	embedder ports.Embedder
	store    ports.EvidenceStore
	cfg      SearchConfig
	logger   *slog.Logger
}

func NewSearchOrchestrator(
	embedder ports.Embedder,
	store ports.EvidenceStore,
	cfg SearchConfig,
	logger *slog.Logger,
) *SearchOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchOrchestrator{
		embedder: embedder,
		store:    store,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

// Search embeds the query once and reuses the vector across all tiers.
func (o *SearchOrchestrator) Search(ctx context.Context, query string) (*domain.EvidenceSet, error) {
	queryVector, err := o.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	summaries := o.searchSummaries(ctx, queryVector)

	var chunks []domain.ChunkRecord
	if len(summaries) > 0 {
		chunks = o.searchChunks(ctx, queryVector, o.cfg.AnchoredChunkTopK, anchorFilter(summaries), "chunks.anchored")
		if len(chunks) == 0 {
			// The anchored pass is global-then-filtered: a matched summary
			// whose chunks are all embedding-distant yields nothing. One
			// unrestricted pass prevents the brittle zero-result case.
			chunks = o.searchChunks(ctx, queryVector, o.cfg.FallbackChunkTopK, domain.ChunkFilter{}, "chunks.fallback")
		}
	}

	if len(chunks) < o.cfg.SufficiencyFloor {
		refill := o.searchChunks(ctx, queryVector, o.cfg.RefillChunkTopK, domain.ChunkFilter{
			ExcludeIDs: chunkIDs(chunks),
		}, "chunks.refill")
		chunks = append(chunks, refill...)
	}

	processed := assembleEvidence(chunks)

	o.logger.Info("search_complete",
		"summaries", len(summaries),
		"chunks", len(processed),
		"search_type", domain.SearchTypeHybrid,
	)

	return &domain.EvidenceSet{
		Summaries: summaries,
		Chunks:    processed,
		Metadata: domain.SearchMetadata{
			TotalChunks:  len(processed),
			SummaryCount: len(summaries),
			SearchType:   domain.SearchTypeHybrid,
		},
	}, nil
}

func (o *SearchOrchestrator) searchSummaries(ctx context.Context, vector []float32) []domain.SummaryRecord {
	summaries, err := o.store.SearchSummaries(ctx, vector, o.cfg.SummaryTopK)
	if err != nil {
		o.logger.Warn("search_stage_degraded", "stage", "summaries", "error", err)
		return nil
	}
	return summaries
}

func (o *SearchOrchestrator) searchChunks(
	ctx context.Context,
	vector []float32,
	limit int,
	filter domain.ChunkFilter,
	stage string,
) []domain.ChunkRecord {
	chunks, err := o.store.SearchChunks(ctx, vector, limit, filter)
	if err != nil {
		o.logger.Warn("search_stage_degraded", "stage", stage, "error", err)
		return nil
	}
	return chunks
}

func anchorFilter(summaries []domain.SummaryRecord) domain.ChunkFilter {
	filter := domain.ChunkFilter{
		SummaryIDs: make([]string, 0, len(summaries)),
		RootIDs:    make([]string, 0, len(summaries)),
	}
	for _, summary := range summaries {
		if summary.ID != "" {
			filter.SummaryIDs = append(filter.SummaryIDs, summary.ID)
		}
		if summary.RootID != "" {
			filter.RootIDs = append(filter.RootIDs, summary.RootID)
		}
	}
	return filter
}

func chunkIDs(chunks []domain.ChunkRecord) []string {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID != "" {
			ids = append(ids, chunk.ID)
		}
	}
	return ids
}
