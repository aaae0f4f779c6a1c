package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

type embedderFake struct {
	queries []string
	err     error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type chunkSearchCall struct {
	limit  int
	filter domain.ChunkFilter
}

type storeFake struct {
	summaries    []domain.SummaryRecord
	summariesErr error

	chunkResults [][]domain.ChunkRecord
	chunkErrs    []error
	chunkCalls   []chunkSearchCall
}

func (f *storeFake) SearchSummaries(context.Context, []float32, int) ([]domain.SummaryRecord, error) {
	if f.summariesErr != nil {
		return nil, f.summariesErr
	}
	return f.summaries, nil
}

func (f *storeFake) SearchChunks(_ context.Context, _ []float32, limit int, filter domain.ChunkFilter) ([]domain.ChunkRecord, error) {
	f.chunkCalls = append(f.chunkCalls, chunkSearchCall{limit: limit, filter: filter})
	idx := len(f.chunkCalls) - 1
	if idx < len(f.chunkErrs) && f.chunkErrs[idx] != nil {
		return nil, f.chunkErrs[idx]
	}
	if idx < len(f.chunkResults) {
		return f.chunkResults[idx], nil
	}
	return nil, nil
}

func (f *storeFake) UpsertSummary(context.Context, domain.SummaryRecord, []float32) (string, error) {
	return "", nil
}
func (f *storeFake) BulkInsertChunks(context.Context, []domain.ChunkRecord, [][]float32) error {
	return nil
}
func (f *storeFake) DeleteByRootID(context.Context, string) error { return nil }

func chunk(id, content string, score float64) domain.ChunkRecord {
	return domain.ChunkRecord{ID: id, Content: content, Score: score}
}

func TestSearchConfigZeroValueGetsDefaults(t *testing.T) {
	got := SearchConfig{}.normalize()
	want := DefaultSearchConfig()
	if got != want {
		t.Fatalf("zero-value config must normalize to defaults: got %+v, want %+v", got, want)
	}
	// The floor in particular: left at 0 it would disable the refill stage.
	if got.SufficiencyFloor != 3 {
		t.Fatalf("expected sufficiency floor 3, got %d", got.SufficiencyFloor)
	}
}

func TestSearchAnchorsChunksToMatchedSummaries(t *testing.T) {
	store := &storeFake{
		summaries: []domain.SummaryRecord{
			{ID: "sum-1", RootID: "root-1"},
			{ID: "sum-2", RootID: "root-2"},
		},
		chunkResults: [][]domain.ChunkRecord{
			{chunk("c1", "alpha", 0.9), chunk("c2", "beta", 0.8), chunk("c3", "gamma", 0.7)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	evidence, err := orchestrator.Search(context.Background(), "question")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.chunkCalls) != 1 {
		t.Fatalf("expected 1 chunk search, got %d", len(store.chunkCalls))
	}
	call := store.chunkCalls[0]
	if call.limit != 10 {
		t.Fatalf("anchored search expected limit=10, got %d", call.limit)
	}
	if len(call.filter.SummaryIDs) != 2 || len(call.filter.RootIDs) != 2 {
		t.Fatalf("expected anchored filter on summary and root ids, got %+v", call.filter)
	}
	if evidence.Metadata.SearchType != domain.SearchTypeHybrid {
		t.Fatalf("expected hybrid search type, got %s", evidence.Metadata.SearchType)
	}
	if len(evidence.Summaries) != 2 || len(evidence.Chunks) != 3 {
		t.Fatalf("unexpected evidence sizes: %d summaries, %d chunks", len(evidence.Summaries), len(evidence.Chunks))
	}
}

func TestSearchFallsBackExactlyOnceWhenAnchoredEmpty(t *testing.T) {
	store := &storeFake{
		summaries: []domain.SummaryRecord{{ID: "sum-1", RootID: "root-1"}},
		chunkResults: [][]domain.ChunkRecord{
			nil, // anchored: no chunk under matched summaries ranked globally
			{chunk("c1", "alpha", 0.9), chunk("c2", "beta", 0.8), chunk("c3", "gamma", 0.7)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	evidence, err := orchestrator.Search(context.Background(), "question")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.chunkCalls) != 2 {
		t.Fatalf("expected anchored + fallback searches, got %d calls", len(store.chunkCalls))
	}
	fallback := store.chunkCalls[1]
	if fallback.limit != 5 {
		t.Fatalf("fallback expected limit=5, got %d", fallback.limit)
	}
	if len(fallback.filter.SummaryIDs) != 0 || len(fallback.filter.RootIDs) != 0 {
		t.Fatalf("fallback must be unrestricted, got %+v", fallback.filter)
	}
	if len(evidence.Chunks) != 3 {
		t.Fatalf("expected 3 chunks from fallback, got %d", len(evidence.Chunks))
	}
}

func TestSearchRefillsWhenBelowSufficiencyFloor(t *testing.T) {
	store := &storeFake{
		summaries: []domain.SummaryRecord{{ID: "sum-1", RootID: "root-1"}},
		chunkResults: [][]domain.ChunkRecord{
			{chunk("c1", "alpha", 0.9), chunk("c2", "beta", 0.8)},
			{chunk("c3", "gamma", 0.7), chunk("c4", "delta", 0.6), chunk("c5", "epsilon", 0.5)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	evidence, err := orchestrator.Search(context.Background(), "question")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.chunkCalls) != 2 {
		t.Fatalf("expected anchored + refill searches, got %d calls", len(store.chunkCalls))
	}
	refill := store.chunkCalls[1]
	if refill.limit != 10 {
		t.Fatalf("refill expected limit=10, got %d", refill.limit)
	}
	if len(refill.filter.ExcludeIDs) != 2 {
		t.Fatalf("refill must exclude collected chunk ids, got %v", refill.filter.ExcludeIDs)
	}
	// Refill results are appended wholesale, never truncated back to the floor.
	if len(evidence.Chunks) != 5 {
		t.Fatalf("expected 5 chunks after refill, got %d", len(evidence.Chunks))
	}
}

func TestSearchNoRefillAtSufficiencyFloor(t *testing.T) {
	store := &storeFake{
		summaries: []domain.SummaryRecord{{ID: "sum-1", RootID: "root-1"}},
		chunkResults: [][]domain.ChunkRecord{
			{chunk("c1", "alpha", 0.9), chunk("c2", "beta", 0.8), chunk("c3", "gamma", 0.7)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	if _, err := orchestrator.Search(context.Background(), "question"); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.chunkCalls) != 1 {
		t.Fatalf("expected no refill at exactly the floor, got %d calls", len(store.chunkCalls))
	}
}

func TestSearchWithoutSummariesGoesStraightToRefill(t *testing.T) {
	store := &storeFake{
		chunkResults: [][]domain.ChunkRecord{
			{chunk("c1", "alpha", 0.9), chunk("c2", "beta", 0.8), chunk("c3", "gamma", 0.7), chunk("c4", "delta", 0.6)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	evidence, err := orchestrator.Search(context.Background(), "question")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.chunkCalls) != 1 {
		t.Fatalf("expected single refill search without summaries, got %d calls", len(store.chunkCalls))
	}
	if store.chunkCalls[0].limit != 10 {
		t.Fatalf("refill expected limit=10, got %d", store.chunkCalls[0].limit)
	}
	if len(evidence.Summaries) != 0 || len(evidence.Chunks) != 4 {
		t.Fatalf("unexpected evidence sizes: %d summaries, %d chunks", len(evidence.Summaries), len(evidence.Chunks))
	}
}

func TestSearchSummaryStageFailureDegradesToEmpty(t *testing.T) {
	store := &storeFake{
		summariesErr: errors.New("index offline"),
		chunkResults: [][]domain.ChunkRecord{
			{chunk("c1", "alpha", 0.9)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	evidence, err := orchestrator.Search(context.Background(), "question")
	if err != nil {
		t.Fatalf("stage failure must not abort the query, got %v", err)
	}
	if len(evidence.Summaries) != 0 {
		t.Fatalf("expected zero summaries after stage failure, got %d", len(evidence.Summaries))
	}
	if len(evidence.Chunks) != 1 {
		t.Fatalf("expected refill chunks despite summary failure, got %d", len(evidence.Chunks))
	}
}

func TestSearchAnchoredFailureTriggersFallback(t *testing.T) {
	store := &storeFake{
		summaries: []domain.SummaryRecord{{ID: "sum-1", RootID: "root-1"}},
		chunkErrs: []error{errors.New("timeout")},
		chunkResults: [][]domain.ChunkRecord{
			nil,
			{chunk("c1", "alpha", 0.9), chunk("c2", "beta", 0.8), chunk("c3", "gamma", 0.7)},
		},
	}
	orchestrator := NewSearchOrchestrator(&embedderFake{}, store, SearchConfig{}, nil)

	evidence, err := orchestrator.Search(context.Background(), "question")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(store.chunkCalls) != 2 {
		t.Fatalf("expected fallback after anchored failure, got %d calls", len(store.chunkCalls))
	}
	if len(evidence.Chunks) != 3 {
		t.Fatalf("expected fallback chunks, got %d", len(evidence.Chunks))
	}
}

func TestSearchEmbedErrorPropagates(t *testing.T) {
	orchestrator := NewSearchOrchestrator(&embedderFake{err: errors.New("embed down")}, &storeFake{}, SearchConfig{}, nil)

	if _, err := orchestrator.Search(context.Background(), "question"); err == nil {
		t.Fatalf("expected error when query embedding fails")
	}
}
