package ports

import (
	"context"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

// QueryService is the inbound contract for question answering. Answer never
// returns a fault: pipeline failures are converted into a terminal error
// response so callers always receive a well-formed QueryResponse.
type QueryService interface {
	Answer(ctx context.Context, query string, metadata map[string]any) *domain.QueryResponse
	AnswerBatch(ctx context.Context, queries []string, metadata map[string]any) []*domain.QueryResponse
}

// RootProcessor is the inbound contract for ingesting one root id's
// document family.
type RootProcessor interface {
	ProcessRoot(ctx context.Context, rootID string) error
}
