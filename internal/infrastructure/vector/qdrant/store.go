package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

// Store keeps the two evidence collections: per-root topic summaries and
// semantic chunks. Both live in the same qdrant instance; the chunks carry a
// summary_id back-reference so retrieval can anchor on matched topics.
type Store struct {
	baseURL             string
	summariesCollection string
	chunksCollection    string
	httpClient          *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, summariesCollection, chunksCollection string) *Store {
	return &Store{
		baseURL:             strings.TrimRight(baseURL, "/"),
		summariesCollection: summariesCollection,
		chunksCollection:    chunksCollection,
		httpClient:          &http.Client{Timeout: 60 * time.Second},
		ensured:             make(map[string]int),
	}
}

// summaryPointID derives the point id from the root id, so re-ingesting a
// root overwrites its summary in place. One summary per root, enforced by the
// id itself rather than by lookup-then-delete coordination.
func summaryPointID(rootID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(rootID)).String()
}

func (s *Store) SearchSummaries(ctx context.Context, queryVector []float32, limit int) ([]domain.SummaryRecord, error) {
	hits, err := s.search(ctx, s.summariesCollection, queryVector, limit, nil)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SummaryRecord, 0, len(hits))
	for _, hit := range hits {
		var record domain.SummaryRecord
		if err := decodePayload(hit.Payload, &record); err != nil {
			return nil, fmt.Errorf("decode summary payload: %w", err)
		}
		record.ID = hit.ID
		record.Score = hit.Score
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) SearchChunks(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.ChunkFilter,
) ([]domain.ChunkRecord, error) {
	hits, err := s.search(ctx, s.chunksCollection, queryVector, limit, chunkQueryFilter(filter))
	if err != nil {
		return nil, err
	}

	out := make([]domain.ChunkRecord, 0, len(hits))
	for _, hit := range hits {
		var record domain.ChunkRecord
		if err := decodePayload(hit.Payload, &record); err != nil {
			return nil, fmt.Errorf("decode chunk payload: %w", err)
		}
		record.ID = hit.ID
		record.Score = hit.Score
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) UpsertSummary(ctx context.Context, summary domain.SummaryRecord, vector []float32) (string, error) {
	if len(vector) == 0 {
		return "", fmt.Errorf("summary vector is empty")
	}
	if err := s.ensureCollection(ctx, s.summariesCollection, len(vector)); err != nil {
		return "", err
	}

	payload, err := encodePayload(summary)
	if err != nil {
		return "", fmt.Errorf("encode summary payload: %w", err)
	}

	pointID := summaryPointID(summary.RootID)
	reqBody := map[string]any{
		"points": []point{{ID: pointID, Vector: vector, Payload: payload}},
	}
	if err := s.upsertPoints(ctx, s.summariesCollection, reqBody); err != nil {
		return "", err
	}
	return pointID, nil
}

func (s *Store) BulkInsertChunks(ctx context.Context, chunks []domain.ChunkRecord, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}
	if err := s.ensureCollection(ctx, s.chunksCollection, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		payload, err := encodePayload(chunk)
		if err != nil {
			return fmt.Errorf("encode chunk payload: %w", err)
		}
		points = append(points, point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: payload,
		})
	}

	return s.upsertPoints(ctx, s.chunksCollection, map[string]any{"points": points})
}

// DeleteByRootID removes the summary and every chunk belonging to one root id
// from both collections.
func (s *Store) DeleteByRootID(ctx context.Context, rootID string) error {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "root_id", "match": map[string]any{"value": rootID}},
		},
	}
	for _, collection := range []string{s.chunksCollection, s.summariesCollection} {
		url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.baseURL, collection)
		if err := s.postJSON(ctx, url, map[string]any{"filter": filter}, nil, "delete"); err != nil {
			return err
		}
	}
	return nil
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type searchHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

func (s *Store) search(
	ctx context.Context,
	collection string,
	queryVector []float32,
	limit int,
	filter map[string]any,
) ([]searchHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		reqBody["filter"] = filter
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, collection)
	if err := s.postJSON(ctx, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	hits := make([]searchHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		hits = append(hits, searchHit{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}

// chunkQueryFilter translates the domain filter: anchored ids are
// alternatives (should), excluded ids are absolute (must_not).
func chunkQueryFilter(filter domain.ChunkFilter) map[string]any {
	var should []map[string]any
	if len(filter.SummaryIDs) > 0 {
		should = append(should, map[string]any{
			"key":   "summary_id",
			"match": map[string]any{"any": filter.SummaryIDs},
		})
	}
	if len(filter.RootIDs) > 0 {
		should = append(should, map[string]any{
			"key":   "root_id",
			"match": map[string]any{"any": filter.RootIDs},
		})
	}

	out := map[string]any{}
	if len(should) > 0 {
		out["should"] = should
	}
	if len(filter.ExcludeIDs) > 0 {
		out["must_not"] = []map[string]any{
			{"has_id": filter.ExcludeIDs},
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Store) upsertPoints(ctx context.Context, collection string, reqBody map[string]any) error {
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, collection)
	return s.putJSON(ctx, url, reqBody, "upsert")
}

func (s *Store) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	s.ensureMu.Lock()
	if size, ok := s.ensured[collection]; ok && size == vectorSize {
		s.ensureMu.Unlock()
		return nil
	}
	s.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", s.baseURL, collection)
	err := s.putJSON(ctx, url, reqBody, "ensure collection")
	// 409 means the collection already exists (depends on version/config).
	if err != nil {
		var statusErr *statusError
		if !errors.As(err, &statusErr) || statusErr.code != http.StatusConflict {
			return err
		}
	}

	s.ensureMu.Lock()
	s.ensured[collection] = vectorSize
	s.ensureMu.Unlock()
	return nil
}

type statusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, strings.TrimSpace(e.body))
}

func (s *Store) postJSON(ctx context.Context, url string, payload any, out any, operation string) error {
	return s.doJSON(ctx, http.MethodPost, url, payload, out, operation)
}

func (s *Store) putJSON(ctx context.Context, url string, payload any, operation string) error {
	return s.doJSON(ctx, http.MethodPut, url, payload, nil, operation)
}

func (s *Store) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation: operation,
			code:      resp.StatusCode,
			status:    resp.Status,
			body:      string(raw),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// encodePayload / decodePayload round-trip records through JSON so the qdrant
// payload carries the same field names the domain types serialize with.
func encodePayload(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	// Point identity and retrieval score live outside the payload.
	delete(payload, "id")
	delete(payload, "score")
	return payload, nil
}

func decodePayload(payload map[string]any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
