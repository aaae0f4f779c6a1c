package usecase

import (
	"testing"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

func TestAssembleEvidenceDeduplicatesByNormalizedContent(t *testing.T) {
	chunks := []domain.ChunkRecord{
		{ID: "c1", Content: "Refunds are  issued within 14 days.", Score: 0.6},
		{ID: "c2", Content: "refunds are issued within 14 days.", Score: 0.9},
		{ID: "c3", Content: "Chargebacks follow a separate flow.", Score: 0.8},
	}

	out := assembleEvidence(chunks)
	if len(out) != 2 {
		t.Fatalf("expected 2 chunks after dedup, got %d", len(out))
	}
	for _, c := range out {
		if c.ID == "c2" {
			t.Fatalf("dedup must keep the first occurrence, found c2")
		}
	}
	// c3 (0.8) outranks the surviving c1 (0.6).
	if out[0].ID != "c3" || out[1].ID != "c1" {
		t.Fatalf("expected descending score order c3,c1, got %s,%s", out[0].ID, out[1].ID)
	}
}

func TestAssembleEvidenceDefaultsMissingScores(t *testing.T) {
	out := assembleEvidence([]domain.ChunkRecord{
		{ID: "c1", Content: "alpha"},
		{ID: "c2", Content: "beta", Score: 0.5},
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(out))
	}
	if out[0].ID != "c1" || out[0].Score != defaultChunkScore {
		t.Fatalf("expected c1 first with default score %.2f, got %s %.2f", defaultChunkScore, out[0].ID, out[0].Score)
	}
}

func TestAssembleEvidenceStableOnTies(t *testing.T) {
	out := assembleEvidence([]domain.ChunkRecord{
		{ID: "c1", Content: "alpha", Score: 0.7},
		{ID: "c2", Content: "beta", Score: 0.7},
		{ID: "c3", Content: "gamma", Score: 0.7},
	})
	if out[0].ID != "c1" || out[1].ID != "c2" || out[2].ID != "c3" {
		t.Fatalf("tied scores must preserve insertion order, got %s,%s,%s", out[0].ID, out[1].ID, out[2].ID)
	}
}

func TestAssembleEvidenceEmptyInput(t *testing.T) {
	if out := assembleEvidence(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}

func TestNormalizeContent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Hello   World ", "hello world"},
		{"HELLO\nworld", "hello world"},
		{"hello world", "hello world"},
	}
	for _, tc := range cases {
		if got := normalizeContent(tc.in); got != tc.want {
			t.Fatalf("normalizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
