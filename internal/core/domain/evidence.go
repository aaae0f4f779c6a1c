package domain

const (
	SearchTypeHybrid = "hybrid"

	// DocumentPathSummary marks citations built from a topic summary rather
	// than a concrete source document.
	DocumentPathSummary = "summary"
)

// SearchMetadata annotates one retrieval pass.
type SearchMetadata struct {
	TotalChunks  int    `json:"total_chunks"`
	SummaryCount int    `json:"summary_count"`
	SearchType   string `json:"search_type"`
}

// EvidenceSet is the combined retrieval result for a single query: topic
// summaries plus deduplicated, score-ordered chunks. It only lives for the
// duration of the query; nothing here mutates persisted state.
type EvidenceSet struct {
	Summaries []SummaryRecord `json:"summaries"`
	Chunks    []ChunkRecord   `json:"chunks"`
	Metadata  SearchMetadata  `json:"metadata"`
}

func (e *EvidenceSet) Empty() bool {
	return e == nil || (len(e.Summaries) == 0 && len(e.Chunks) == 0)
}

// Citation attaches one evidence item to the final answer. Exactly one of
// SummaryMetadata/ChunkMetadata is set, matching the evidence family.
type Citation struct {
	Content         string           `json:"content"`
	DocumentPath    string           `json:"document_path"`
	Confidence      float64          `json:"confidence"`
	SummaryMetadata *SummaryMetadata `json:"summary_metadata,omitempty"`
	ChunkMetadata   *ChunkMetadata   `json:"chunk_metadata,omitempty"`
}

// SourcesUsed counts the evidence families behind an answer.
type SourcesUsed struct {
	Summaries int `json:"summaries"`
	Chunks    int `json:"chunks"`
}

// QueryResponse is the terminal pipeline output. The pipeline never raises
// past its boundary: degraded results surface as confidence 0.0 plus an
// "error" entry in Metadata, never as a Go error to the caller.
type QueryResponse struct {
	Answer     string         `json:"answer"`
	Citations  []Citation     `json:"citations"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}
