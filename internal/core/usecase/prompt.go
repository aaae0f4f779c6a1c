package usecase

import (
	"fmt"
	"strings"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

const answerRequirements = `Requirements:
1. Start with a direct answer, then provide necessary context or conditions.
2. Be concise - aim for 3-4 sentences unless more detail is strictly necessary.
3. Use only information from the provided context.
4. If sources disagree, note the differences briefly.
5. If the information is incomplete, acknowledge what's missing.
6. Use plain text only - no markdown, bullets, headers, or special formatting.
7. If a longer response is needed, organize it in clear paragraphs.`

func buildComprehensivePrompt(query string, summaries []domain.SummaryRecord, chunks []domain.ChunkRecord) string {
	var context strings.Builder
	for _, summary := range summaries {
		context.WriteString("Summary:\n")
		context.WriteString(summary.Summary)
		context.WriteString("\n\n")
	}
	for _, chunk := range chunks {
		context.WriteString("Detail:\n")
		context.WriteString(chunk.Content)
		context.WriteString("\n\n")
	}

	return fmt.Sprintf(`Answer the following question using the provided context.

Question: %s

Context:
%s
%s

Answer:`, query, context.String(), answerRequirements)
}

func buildChunksPrompt(query string, chunks []domain.ChunkRecord) string {
	var context strings.Builder
	for idx, chunk := range chunks {
		context.WriteString(fmt.Sprintf("Source %d:\n%s\n\n", idx+1, chunk.Content))
	}

	return fmt.Sprintf(`Answer the following question using only the provided information.

Question: %s

Information:
%s
%s

Answer:`, query, context.String(), answerRequirements)
}

func buildRootSummaryPrompt(documents []domain.PolicyDocument) string {
	contents := make([]string, 0, len(documents))
	for _, doc := range documents {
		contents = append(contents, doc.Content)
	}

	return fmt.Sprintf(`Create a comprehensive summary of these related documents following these guidelines:
1. Begin with a clear overview.
2. Identify main topics and key concepts.
3. Highlight important relationships between documents.
4. Include key steps or procedures if present.
5. Note any important definitions or terms.
6. Structure the summary with clear sections.

Content:
%s

Provide a well-structured summary that captures the main points and relationships.`,
		strings.Join(contents, "\n\n"))
}

// summaryEmbeddingContext prepends title and scoping metadata so the summary
// vector carries topic identity, not just the generated prose.
func summaryEmbeddingContext(doc domain.PolicyDocument, summary string) string {
	return fmt.Sprintf(`Document Title: %s
Business Areas: %s
Channels: %s

Summary Content:
%s`,
		doc.Title,
		strings.Join(doc.BusinessAreas, ", "),
		strings.Join(doc.Channels, ", "),
		summary,
	)
}

// chunkEmbeddingContext wraps chunk content with document context before
// embedding, matching how the query side describes topics.
func chunkEmbeddingContext(doc domain.PolicyDocument, content string) string {
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "general"
	}
	return fmt.Sprintf(`Document: %s
Content Type: %s
Business Areas: %s
Products: %s

Content: %s`,
		doc.Title,
		contentType,
		strings.Join(doc.BusinessAreas, ", "),
		strings.Join(doc.Products, ", "),
		content,
	)
}
