package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
)

// SemanticChunker asks the completion model to split a document along topic
// boundaries and classify each piece. The model's output is advisory: if the
// call fails or nothing parses, the window splitter takes over so ingestion
// never stalls on a flaky model.
type SemanticChunker struct {
	completer ports.Completer
	fallback  *WindowSplitter
	logger    *slog.Logger
}

func NewSemanticChunker(completer ports.Completer, fallback *WindowSplitter, logger *slog.Logger) *SemanticChunker {
	if fallback == nil {
		fallback = NewWindowSplitter(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticChunker{
		completer: completer,
		fallback:  fallback,
		logger:    logger,
	}
}

func (c *SemanticChunker) Chunk(ctx context.Context, content string, doc domain.PolicyDocument) ([]domain.ChunkDraft, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	raw, err := c.completer.Complete(ctx, buildChunkingPrompt(doc, content))
	if err != nil {
		c.logger.Warn("semantic_chunking_degraded",
			"component_path", doc.ComponentPath,
			"reason", "completion_failed",
			"error", err,
		)
		return c.fallbackDrafts(content), nil
	}

	drafts := parseChunkedResponse(raw)
	if len(drafts) == 0 {
		c.logger.Warn("semantic_chunking_degraded",
			"component_path", doc.ComponentPath,
			"reason", "unparseable_response",
		)
		return c.fallbackDrafts(content), nil
	}
	return drafts, nil
}

func (c *SemanticChunker) fallbackDrafts(content string) []domain.ChunkDraft {
	pieces := c.fallback.Split(content)
	drafts := make([]domain.ChunkDraft, 0, len(pieces))
	for _, piece := range pieces {
		drafts = append(drafts, domain.ChunkDraft{
			Content:  piece,
			Analysis: domain.ChunkAnalysis{Type: "general"},
		})
	}
	return drafts
}

func buildChunkingPrompt(doc domain.PolicyDocument, content string) string {
	return fmt.Sprintf(`Split the following document into semantically coherent chunks.

Rules:
1. Each chunk must cover one topic, rule, or procedure.
2. Never split a step sequence across chunks.
3. Keep chunks between roughly 300 and 1500 characters.
4. Output each chunk as a JSON object on the format below, chunks separated by a line containing only ###.

Format per chunk:
{"content": "<chunk text>", "type": "<policy|procedure|definition|general>", "key_concepts": ["..."], "relationships": ["..."], "is_procedure": false, "procedure_type": "", "is_complete_procedure": false}

Document title: %s

Document:
%s`, doc.Title, content)
}
