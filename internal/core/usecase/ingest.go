package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
)

// RootIngestUseCase rebuilds one root id's evidence: a fresh topic summary
// plus the semantic chunks of every document in the family. Re-ingestion is
// destructive by design - existing summary and chunks for the root id are
// deleted before the new records land, which keeps the one-summary-per-root
// invariant without cross-worker coordination.
type RootIngestUseCase struct {
	source    ports.PolicyDocumentSource
	cleaner   ports.ContentCleaner
	chunker   ports.SemanticChunker
	embedder  ports.Embedder
	completer ports.Completer
	store     ports.EvidenceStore
	logger    *slog.Logger
}

func NewRootIngestUseCase(
	source ports.PolicyDocumentSource,
	cleaner ports.ContentCleaner,
	chunker ports.SemanticChunker,
	embedder ports.Embedder,
	completer ports.Completer,
	store ports.EvidenceStore,
	logger *slog.Logger,
) *RootIngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RootIngestUseCase{
		source:    source,
		cleaner:   cleaner,
		chunker:   chunker,
		embedder:  embedder,
		completer: completer,
		store:     store,
		logger:    logger,
	}
}

func (uc *RootIngestUseCase) ProcessRoot(ctx context.Context, rootID string) error {
	start := time.Now()

	documents, err := uc.source.ListByRootID(ctx, rootID)
	if err != nil {
		return fmt.Errorf("list documents for root: %w", err)
	}
	if len(documents) == 0 {
		uc.logger.Warn("no_documents_for_root", "root_id", rootID)
		return nil
	}

	for i := range documents {
		documents[i].Content = uc.cleaner.Clean(documents[i].Content)
	}

	summary, summaryVector, err := uc.buildSummary(ctx, rootID, documents)
	if err != nil {
		return err
	}

	// Delete-then-recreate: old chunks must never outlive their summary.
	if err := uc.store.DeleteByRootID(ctx, rootID); err != nil {
		return fmt.Errorf("delete existing records for root: %w", err)
	}

	summaryID, err := uc.store.UpsertSummary(ctx, summary, summaryVector)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	totalChunks := 0
	chunkTypes := map[string]int{}
	for _, doc := range documents {
		count, err := uc.ingestDocumentChunks(ctx, doc, summaryID, chunkTypes)
		if err != nil {
			return err
		}
		totalChunks += count
	}

	uc.logger.Info("root_ingested",
		"root_id", rootID,
		"documents", len(documents),
		"chunks", totalChunks,
		"chunk_types", chunkTypes,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}

func (uc *RootIngestUseCase) buildSummary(
	ctx context.Context,
	rootID string,
	documents []domain.PolicyDocument,
) (domain.SummaryRecord, []float32, error) {
	summaryText, err := uc.completer.Complete(ctx, buildRootSummaryPrompt(documents))
	if err != nil {
		return domain.SummaryRecord{}, nil, fmt.Errorf("generate root summary: %w", err)
	}
	if summaryText == "" {
		return domain.SummaryRecord{}, nil, domain.WrapError(domain.ErrInvalidInput, "generate root summary", errors.New("empty summary"))
	}

	main := documents[0]
	vector, err := uc.embedder.EmbedQuery(ctx, summaryEmbeddingContext(main, summaryText))
	if err != nil {
		return domain.SummaryRecord{}, nil, fmt.Errorf("embed root summary: %w", err)
	}

	sources := make([]domain.SourceDocumentRef, 0, len(documents))
	for _, doc := range documents {
		sources = append(sources, domain.SourceDocumentRef{
			DocumentID:    doc.ID,
			ComponentPath: doc.ComponentPath,
			Title:         doc.Title,
		})
	}

	return domain.SummaryRecord{
		RootID:          rootID,
		Title:           main.Title,
		Summary:         summaryText,
		SourceDocuments: sources,
		Metadata: domain.SummaryMetadata{
			Channels:                  main.Channels,
			BusinessAreas:             main.BusinessAreas,
			AppliesToAllBusinessAreas: main.AppliesToAllBusinessAreas(),
			Subjects:                  main.Subjects,
			Tags:                      main.Tags,
			DocumentCount:             len(documents),
			CreatedAt:                 time.Now().UTC(),
		},
	}, vector, nil
}

func (uc *RootIngestUseCase) ingestDocumentChunks(
	ctx context.Context,
	doc domain.PolicyDocument,
	summaryID string,
	chunkTypes map[string]int,
) (int, error) {
	drafts, err := uc.chunker.Chunk(ctx, doc.Content, doc)
	if err != nil {
		return 0, fmt.Errorf("chunk document %s: %w", doc.ComponentPath, err)
	}
	if len(drafts) == 0 {
		uc.logger.Warn("no_chunks_for_document", "component_path", doc.ComponentPath)
		return 0, nil
	}

	contexts := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		contexts = append(contexts, chunkEmbeddingContext(doc, draft.Content))
	}
	vectors, err := uc.embedder.Embed(ctx, contexts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks for %s: %w", doc.ComponentPath, err)
	}
	if len(vectors) != len(drafts) {
		return 0, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(drafts)),
		)
	}

	chunks := make([]domain.ChunkRecord, 0, len(drafts))
	for _, draft := range drafts {
		chunkTypes[draft.Analysis.Type]++
		chunks = append(chunks, domain.ChunkRecord{
			RootID:    doc.RootID(),
			SummaryID: summaryID,
			Content:   draft.Content,
			Metadata: domain.ChunkMetadata{
				ComponentPath:             doc.ComponentPath,
				BusinessAreas:             doc.BusinessAreas,
				Products:                  doc.Products,
				ContentType:               doc.ContentType,
				AppliesToAllBusinessAreas: doc.AppliesToAllBusinessAreas(),
				Analysis:                  draft.Analysis,
				IsProcedure:               draft.IsProcedure,
				ProcedureType:             draft.ProcedureType,
				IsCompleteProcedure:       draft.IsCompleteProcedure,
			},
		})
	}

	if err := uc.store.BulkInsertChunks(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("store chunks for %s: %w", doc.ComponentPath, err)
	}
	return len(chunks), nil
}
