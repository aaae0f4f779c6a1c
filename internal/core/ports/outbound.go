package ports

import (
	"context"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

// Embedder maps text to fixed-length dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer maps a prompt to generated text via a single non-streaming
// completion request.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EvidenceStore persists and searches summary and chunk records.
type EvidenceStore interface {
	SearchSummaries(ctx context.Context, vector []float32, limit int) ([]domain.SummaryRecord, error)
	SearchChunks(ctx context.Context, vector []float32, limit int, filter domain.ChunkFilter) ([]domain.ChunkRecord, error)
	UpsertSummary(ctx context.Context, summary domain.SummaryRecord, vector []float32) (string, error)
	BulkInsertChunks(ctx context.Context, chunks []domain.ChunkRecord, vectors [][]float32) error
	DeleteByRootID(ctx context.Context, rootID string) error
}

// PolicyDocumentSource reads the raw document corpus.
type PolicyDocumentSource interface {
	ListByRootID(ctx context.Context, rootID string) ([]domain.PolicyDocument, error)
	ListRootIDs(ctx context.Context) ([]string, error)
}

// MessageQueue fans root-id ingestion work out to workers.
type MessageQueue interface {
	PublishRootIngest(ctx context.Context, rootID string) error
	SubscribeRootIngest(ctx context.Context, handler func(context.Context, string) error) error
}

// ContentCleaner strips markup and normalizes whitespace in raw content.
type ContentCleaner interface {
	Clean(content string) string
}

// SemanticChunker splits cleaned document content into coherent excerpts.
type SemanticChunker interface {
	Chunk(ctx context.Context, content string, doc domain.PolicyDocument) ([]domain.ChunkDraft, error)
}
