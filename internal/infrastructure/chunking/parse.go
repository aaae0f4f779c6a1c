package chunking

import (
	"encoding/json"
	"strings"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

const chunkSeparator = "###"

type chunkPayload struct {
	Content             string   `json:"content"`
	Type                string   `json:"type"`
	ChunkType           string   `json:"chunk_type"`
	KeyConcepts         []string `json:"key_concepts"`
	Relationships       []string `json:"relationships"`
	IsProcedure         bool     `json:"is_procedure"`
	ProcedureType       string   `json:"procedure_type"`
	IsCompleteProcedure bool     `json:"is_complete_procedure"`
}

// parseChunkedResponse recovers as much as it can from model output: fenced
// code blocks are unwrapped, sections with broken JSON are salvaged as plain
// content, and empty sections are dropped.
func parseChunkedResponse(raw string) []domain.ChunkDraft {
	raw = stripCodeFences(raw)
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var drafts []domain.ChunkDraft
	for _, section := range strings.Split(raw, chunkSeparator) {
		if draft, ok := parseChunkSection(section); ok {
			drafts = append(drafts, draft)
		}
	}
	return drafts
}

func parseChunkSection(section string) (domain.ChunkDraft, bool) {
	section = strings.TrimSpace(section)
	if section == "" {
		return domain.ChunkDraft{}, false
	}

	var payload chunkPayload
	if err := json.Unmarshal([]byte(extractJSONObject(section)), &payload); err != nil || strings.TrimSpace(payload.Content) == "" {
		// Broken metadata is not worth losing the text over.
		return domain.ChunkDraft{
			Content:  section,
			Analysis: domain.ChunkAnalysis{Type: "general"},
		}, true
	}

	chunkType := payload.Type
	if chunkType == "" {
		chunkType = payload.ChunkType
	}
	if chunkType == "" {
		chunkType = "general"
	}

	return domain.ChunkDraft{
		Content: strings.TrimSpace(payload.Content),
		Analysis: domain.ChunkAnalysis{
			Type:          chunkType,
			KeyConcepts:   payload.KeyConcepts,
			Relationships: payload.Relationships,
		},
		IsProcedure:         payload.IsProcedure,
		ProcedureType:       payload.ProcedureType,
		IsCompleteProcedure: payload.IsCompleteProcedure,
	}, true
}

func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return raw
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
