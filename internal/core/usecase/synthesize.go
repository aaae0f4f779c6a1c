package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
)

const (
	noContentAnswer = "I apologize, but I couldn't find relevant information to answer your question accurately."
	errorAnswer     = "I apologize, but I encountered an error while processing your question."

	// summaryCitationConfidence is a static annotation, not a computed
	// relevance score. TODO: replace with a similarity-based score once the
	// embedding distances are carried through to citation assembly.
	summaryCitationConfidence = 0.9

	// confidenceCap keeps the heuristic score from ever claiming certainty.
	confidenceCap = 0.95
)

// ResponseSynthesizer turns an evidence set into an attributable answer:
// prompt construction, one completion call, citation assembly, and the
// heuristic confidence score. All failures are absorbed at this boundary and
// converted into a terminal error response.
type ResponseSynthesizer struct {
	completer ports.Completer
	logger    *slog.Logger
}

func NewResponseSynthesizer(completer ports.Completer, logger *slog.Logger) *ResponseSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseSynthesizer{
		completer: completer,
		logger:    logger,
	}
}

func (s *ResponseSynthesizer) Generate(ctx context.Context, query string, evidence *domain.EvidenceSet) *domain.QueryResponse {
	if evidence.Empty() {
		return newNoContentResponse()
	}

	var (
		response *domain.QueryResponse
		err      error
	)
	if len(evidence.Summaries) > 0 {
		response, err = s.generateComprehensive(ctx, query, evidence)
	} else {
		response, err = s.generateFromChunks(ctx, query, evidence.Chunks)
	}
	if err != nil {
		s.logger.Error("synthesis_failed", "error", err)
		return newErrorResponse(err)
	}

	response.Metadata["processed_at"] = time.Now().UTC().Format(time.RFC3339)
	response.Metadata["search_type"] = evidence.Metadata.SearchType
	return response
}

// generateComprehensive grounds the answer in summaries first, then chunk
// detail, so broad topic context precedes specifics in the prompt.
func (s *ResponseSynthesizer) generateComprehensive(
	ctx context.Context,
	query string,
	evidence *domain.EvidenceSet,
) (*domain.QueryResponse, error) {
	prompt := buildComprehensivePrompt(query, evidence.Summaries, evidence.Chunks)

	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("comprehensive completion: %w", err)
	}

	citations := buildCitations(evidence.Summaries, evidence.Chunks)
	return &domain.QueryResponse{
		Answer:     answer,
		Citations:  citations,
		Confidence: overallConfidence(citations, len(evidence.Summaries)),
		Metadata: map[string]any{
			"sources_used": domain.SourcesUsed{
				Summaries: len(evidence.Summaries),
				Chunks:    len(evidence.Chunks),
			},
		},
	}, nil
}

func (s *ResponseSynthesizer) generateFromChunks(
	ctx context.Context,
	query string,
	chunks []domain.ChunkRecord,
) (*domain.QueryResponse, error) {
	prompt := buildChunksPrompt(query, chunks)

	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("chunks completion: %w", err)
	}

	citations := buildChunkCitations(chunks)
	return &domain.QueryResponse{
		Answer:     answer,
		Citations:  citations,
		Confidence: citationConfidence(citations),
		Metadata: map[string]any{
			"sources_used": domain.SourcesUsed{
				Chunks: len(chunks),
			},
		},
	}, nil
}

func buildCitations(summaries []domain.SummaryRecord, chunks []domain.ChunkRecord) []domain.Citation {
	citations := make([]domain.Citation, 0, len(summaries)+len(chunks))
	for _, summary := range summaries {
		metadata := summary.Metadata
		citations = append(citations, domain.Citation{
			Content:         summary.Summary,
			DocumentPath:    domain.DocumentPathSummary,
			Confidence:      summaryCitationConfidence,
			SummaryMetadata: &metadata,
		})
	}
	return append(citations, buildChunkCitations(chunks)...)
}

func buildChunkCitations(chunks []domain.ChunkRecord) []domain.Citation {
	citations := make([]domain.Citation, 0, len(chunks))
	for _, chunk := range chunks {
		score := chunk.Score
		if score == 0 {
			score = defaultChunkScore
		}
		metadata := chunk.Metadata
		citations = append(citations, domain.Citation{
			Content:       chunk.Content,
			DocumentPath:  chunk.Metadata.ComponentPath,
			Confidence:    score,
			ChunkMetadata: &metadata,
		})
	}
	return citations
}

// overallConfidence averages two components: a fixed weight for summary
// presence and the mean citation confidence.
func overallConfidence(citations []domain.Citation, summaryCount int) float64 {
	if len(citations) == 0 {
		return 0.0
	}

	var components []float64
	if summaryCount > 0 {
		components = append(components, summaryCitationConfidence)
	}
	components = append(components, meanConfidence(citations))

	return capConfidence(mean(components))
}

func citationConfidence(citations []domain.Citation) float64 {
	if len(citations) == 0 {
		return 0.0
	}
	return capConfidence(meanConfidence(citations))
}

func meanConfidence(citations []domain.Citation) float64 {
	scores := make([]float64, 0, len(citations))
	for _, citation := range citations {
		scores = append(scores, citation.Confidence)
	}
	return mean(scores)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func capConfidence(score float64) float64 {
	if score > confidenceCap {
		return confidenceCap
	}
	return score
}

func newNoContentResponse() *domain.QueryResponse {
	return &domain.QueryResponse{
		Answer:     noContentAnswer,
		Citations:  []domain.Citation{},
		Confidence: 0.0,
		Metadata: map[string]any{
			"error": "no relevant content found",
		},
	}
}

func newErrorResponse(err error) *domain.QueryResponse {
	return &domain.QueryResponse{
		Answer:     errorAnswer,
		Citations:  []domain.Citation{},
		Confidence: 0.0,
		Metadata: map[string]any{
			"error":      err.Error(),
			"error_time": time.Now().UTC().Format(time.RFC3339),
		},
	}
}
