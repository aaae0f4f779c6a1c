package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

// EvidenceSearcher retrieves the evidence set for one query.
type EvidenceSearcher interface {
	Search(ctx context.Context, query string) (*domain.EvidenceSet, error)
}

// AnswerSynthesizer turns an evidence set into a terminal response.
type AnswerSynthesizer interface {
	Generate(ctx context.Context, query string, evidence *domain.EvidenceSet) *domain.QueryResponse
}

// QueryPipeline composes retrieval and synthesis and stamps pipeline-level
// metadata. It is the outermost recovery boundary: callers always get a
// well-formed response, never a fault.
type QueryPipeline struct {
	searcher    EvidenceSearcher
	synthesizer AnswerSynthesizer
	logger      *slog.Logger
}

func NewQueryPipeline(searcher EvidenceSearcher, synthesizer AnswerSynthesizer, logger *slog.Logger) *QueryPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryPipeline{
		searcher:    searcher,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

func (p *QueryPipeline) Answer(ctx context.Context, query string, metadata map[string]any) *domain.QueryResponse {
	evidence, err := p.searcher.Search(ctx, query)
	if err != nil {
		p.logger.Error("query_failed", "error", err)
		return finalize(newErrorResponse(err), nil, metadata)
	}

	response := p.synthesizer.Generate(ctx, query, evidence)
	return finalize(response, evidence, metadata)
}

// AnswerBatch processes independent queries one at a time; one query's
// failure never aborts the rest of the batch.
func (p *QueryPipeline) AnswerBatch(ctx context.Context, queries []string, metadata map[string]any) []*domain.QueryResponse {
	responses := make([]*domain.QueryResponse, 0, len(queries))
	for _, query := range queries {
		responses = append(responses, p.Answer(ctx, query, metadata))
	}
	return responses
}

func finalize(response *domain.QueryResponse, evidence *domain.EvidenceSet, metadata map[string]any) *domain.QueryResponse {
	if response.Metadata == nil {
		response.Metadata = map[string]any{}
	}

	response.Metadata["processed_at"] = time.Now().UTC().Format(time.RFC3339)
	if evidence != nil {
		response.Metadata["sources_used"] = domain.SourcesUsed{
			Summaries: len(evidence.Summaries),
			Chunks:    len(evidence.Chunks),
		}
	}
	for key, value := range metadata {
		response.Metadata[key] = value
	}
	return response
}
