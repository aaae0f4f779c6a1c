package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/observability/metrics"
)

type querySvcFake struct {
	response *domain.QueryResponse
	queries  []string
	metadata []map[string]any
}

func (f *querySvcFake) Answer(_ context.Context, query string, metadata map[string]any) *domain.QueryResponse {
	f.queries = append(f.queries, query)
	f.metadata = append(f.metadata, metadata)
	r := *f.response
	return &r
}

func (f *querySvcFake) AnswerBatch(ctx context.Context, queries []string, metadata map[string]any) []*domain.QueryResponse {
	out := make([]*domain.QueryResponse, 0, len(queries))
	for _, q := range queries {
		out = append(out, f.Answer(ctx, q, metadata))
	}
	return out
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishRootIngest(_ context.Context, rootID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, rootID)
	return nil
}

func (f *queueFake) SubscribeRootIngest(context.Context, func(context.Context, string) error) error {
	return nil
}

func answeredResponse() *domain.QueryResponse {
	return &domain.QueryResponse{
		Answer:     "Refunds are issued within 14 days.",
		Citations:  []domain.Citation{{Content: "c", DocumentPath: "root_a", Confidence: 0.7}},
		Confidence: 0.7,
		Metadata:   map[string]any{},
	}
}

func newTestRouter(svc *querySvcFake, queue *queueFake, options Options) http.Handler {
	return NewRouter(
		svc,
		queue,
		NewConversationManager(svc, 10),
		metrics.NewHTTPServerMetrics("api"),
		options,
	).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryEndpointAlwaysReturns200(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	handler := newTestRouter(svc, &queueFake{}, Options{})

	res := postJSON(t, handler, "/v1/query", map[string]any{
		"query":    "what is the refund policy",
		"metadata": map[string]any{"channel": "api"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var response domain.QueryResponse
	if err := json.Unmarshal(res.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Answer == "" || len(response.Citations) != 1 {
		t.Fatalf("unexpected response: %+v", response)
	}
	if svc.metadata[0]["channel"] != "api" {
		t.Fatalf("request metadata not forwarded: %v", svc.metadata[0])
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	handler := newTestRouter(&querySvcFake{response: answeredResponse()}, &queueFake{}, Options{})

	res := postJSON(t, handler, "/v1/query", map[string]any{"query": "   "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("blank query expected 400, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET expected 405, got %d", rec.Code)
	}
}

func TestQueryBatchEndpoint(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	handler := newTestRouter(svc, &queueFake{}, Options{})

	res := postJSON(t, handler, "/v1/query/batch", map[string]any{
		"queries": []string{"q1", "q2", "q3"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body struct {
		Responses []domain.QueryResponse `json:"responses"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(body.Responses))
	}
	if len(svc.queries) != 3 {
		t.Fatalf("expected 3 pipeline calls, got %d", len(svc.queries))
	}
}

func TestEnqueueIngestPublishesRootID(t *testing.T) {
	queue := &queueFake{}
	handler := newTestRouter(&querySvcFake{response: answeredResponse()}, queue, Options{})

	res := postJSON(t, handler, "/v1/ingest", map[string]string{"root_id": "root-1"})
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(queue.published) != 1 || queue.published[0] != "root-1" {
		t.Fatalf("root id not published: %v", queue.published)
	}
}

func TestEnqueueIngestMapsTemporaryErrorTo503(t *testing.T) {
	queue := &queueFake{err: domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("no servers"))}
	handler := newTestRouter(&querySvcFake{response: answeredResponse()}, queue, Options{})

	res := postJSON(t, handler, "/v1/ingest", map[string]string{"root_id": "root-1"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for temporary failure, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&querySvcFake{response: answeredResponse()}, &queueFake{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestRouter(&querySvcFake{response: answeredResponse()}, &queueFake{}, Options{
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestRateLimitRejectionsDoNotConsumeCapacity(t *testing.T) {
	handler := newTestRouter(&querySvcFake{response: answeredResponse()}, &queueFake{}, Options{
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res.Code)
	}

	// Every rejected request must return its booked token; Retry-After stays
	// near one refill interval instead of growing with each rejection.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusTooManyRequests {
			t.Fatalf("rejection %d expected 429, got %d", i, res.Code)
		}
		retryAfter, err := strconv.Atoi(res.Header().Get("Retry-After"))
		if err != nil {
			t.Fatalf("rejection %d: bad Retry-After %q", i, res.Header().Get("Retry-After"))
		}
		if retryAfter > 2 {
			t.Fatalf("rejection %d: Retry-After grew to %d, rejected requests are consuming capacity", i, retryAfter)
		}
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}
