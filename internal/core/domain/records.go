package domain

import (
	"strings"
	"time"
)

// PolicyDocument is a raw source document as stored in the relational corpus.
// The component path encodes ownership: everything before the first underscore
// is the root id grouping a family of related documents.
type PolicyDocument struct {
	ID            string    `json:"id"`
	ComponentPath string    `json:"component_path"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Channels      []string  `json:"channels,omitempty"`
	BusinessAreas []string  `json:"business_areas,omitempty"`
	Subjects      []string  `json:"subjects,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Products      []string  `json:"products,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (d PolicyDocument) RootID() string {
	if idx := strings.Index(d.ComponentPath, "_"); idx > 0 {
		return d.ComponentPath[:idx]
	}
	return d.ComponentPath
}

// AppliesToAllBusinessAreas reports whether the document is scoped to no
// particular business area (empty or blank-only list).
func (d PolicyDocument) AppliesToAllBusinessAreas() bool {
	if len(d.BusinessAreas) == 0 {
		return true
	}
	return len(d.BusinessAreas) == 1 && d.BusinessAreas[0] == ""
}

// SourceDocumentRef points a summary back at one of the documents it covers.
type SourceDocumentRef struct {
	DocumentID    string `json:"doc_id"`
	ComponentPath string `json:"component_path"`
	Title         string `json:"title"`
}

type SummaryMetadata struct {
	Channels                  []string  `json:"channels"`
	BusinessAreas             []string  `json:"business_areas"`
	AppliesToAllBusinessAreas bool      `json:"applies_to_all_business_areas"`
	Subjects                  []string  `json:"subjects"`
	Tags                      []string  `json:"tags"`
	DocumentCount             int       `json:"document_count"`
	CreatedAt                 time.Time `json:"created_at"`
}

// SummaryRecord is the per-root-id topic summary. One summary exists per root
// id; re-ingestion deletes and recreates it. Score is only populated on
// records returned from a vector search.
type SummaryRecord struct {
	ID              string              `json:"id"`
	RootID          string              `json:"root_id"`
	Title           string              `json:"title"`
	Summary         string              `json:"summary"`
	SourceDocuments []SourceDocumentRef `json:"source_documents"`
	Metadata        SummaryMetadata     `json:"metadata"`
	Score           float64             `json:"score,omitempty"`
}

// ChunkAnalysis carries the semantic classification the chunker produced.
type ChunkAnalysis struct {
	Type          string   `json:"type"`
	KeyConcepts   []string `json:"key_concepts"`
	Relationships []string `json:"relationships"`
}

type ChunkMetadata struct {
	ComponentPath             string        `json:"component_path"`
	BusinessAreas             []string      `json:"business_areas"`
	Products                  []string      `json:"products"`
	ContentType               string        `json:"content_type"`
	AppliesToAllBusinessAreas bool          `json:"applies_to_all_business_areas"`
	Analysis                  ChunkAnalysis `json:"chunk_analysis"`
	IsProcedure               bool          `json:"is_procedure"`
	ProcedureType             string        `json:"procedure_type,omitempty"`
	IsCompleteProcedure       bool          `json:"is_complete_procedure"`
}

// ChunkRecord is a semantically coherent excerpt of one document. Every chunk
// belongs to exactly one summary and one root id; content is never empty.
// Score is only populated on records returned from a vector search.
type ChunkRecord struct {
	ID        string        `json:"id"`
	RootID    string        `json:"root_id"`
	SummaryID string        `json:"summary_id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Score     float64       `json:"score,omitempty"`
}

// ChunkDraft is chunker output before embedding and storage assignment.
type ChunkDraft struct {
	Content             string
	Analysis            ChunkAnalysis
	IsProcedure         bool
	ProcedureType       string
	IsCompleteProcedure bool
}

// ChunkFilter restricts a chunk vector search.
type ChunkFilter struct {
	SummaryIDs []string
	RootIDs    []string
	ExcludeIDs []string
}
