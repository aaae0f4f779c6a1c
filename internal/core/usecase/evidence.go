package usecase

import (
	"sort"
	"strings"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

// defaultChunkScore stands in for chunks the store returned without a
// retrieval score.
const defaultChunkScore = 0.7

// assembleEvidence deduplicates chunks by normalized content and orders them
// by descending score. The first occurrence of duplicated content wins and
// keeps its own score; ties keep insertion order.
func assembleEvidence(chunks []domain.ChunkRecord) []domain.ChunkRecord {
	if len(chunks) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(chunks))
	out := make([]domain.ChunkRecord, 0, len(chunks))
	for _, chunk := range chunks {
		key := normalizeContent(chunk.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if chunk.Score == 0 {
			chunk.Score = defaultChunkScore
		}
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// normalizeContent builds the dedup key: case-folded with runs of whitespace
// collapsed to single spaces.
func normalizeContent(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}
