package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
	"github.com/compiledanswers/policy-rag/internal/observability/metrics"
)

const serviceName = "api"

// Options carries the traffic-control knobs the router applies around its
// handlers.
type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
}

type Router struct {
	querySvc     ports.QueryService
	queue        ports.MessageQueue
	conversation *ConversationManager
	metrics      *metrics.HTTPServerMetrics
	options      Options
}

func NewRouter(
	querySvc ports.QueryService,
	queue ports.MessageQueue,
	conversation *ConversationManager,
	httpMetrics *metrics.HTTPServerMetrics,
	options Options,
) *Router {
	return &Router{
		querySvc:     querySvc,
		queue:        queue,
		conversation: conversation,
		metrics:      httpMetrics,
		options:      options,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/query/batch", rt.queryBatch)
	mux.HandleFunc("/v1/messages", rt.message)
	mux.HandleFunc("/v1/ingest", rt.enqueueIngest)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.options.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.options.MaxConcurrent, rt.options.BackpressureWait)
	}
	if rt.options.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.options.RateLimitRPS, rt.options.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// query runs one question through the pipeline. The response is always 200
// with a well-formed body; pipeline failures surface as the terminal error
// answer, not as an HTTP error.
func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query    string         `json:"query"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	response := rt.querySvc.Answer(r.Context(), req.Query, req.Metadata)
	rt.recordQuery("/v1/query", response, time.Since(start))

	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) queryBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Queries  []string       `json:"queries"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Queries) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "queries are required"})
		return
	}

	start := time.Now()
	responses := rt.querySvc.AnswerBatch(r.Context(), req.Queries, req.Metadata)
	for _, response := range responses {
		rt.recordQuery("/v1/query/batch", response, time.Since(start)/time.Duration(len(responses)))
	}

	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (rt *Router) message(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	reply := rt.conversation.Handle(r.Context(), req)
	if rt.metrics != nil {
		rt.metrics.RecordConversationMessage(serviceName, reply.Intent)
	}
	writeJSON(w, http.StatusOK, reply)
}

// enqueueIngest publishes a root id for the workers; it does not wait for the
// ingestion to run.
func (rt *Router) enqueueIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		RootID string `json:"root_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.RootID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "root_id is required"})
		return
	}

	if err := rt.queue.PublishRootIngest(r.Context(), req.RootID); err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"root_id": req.RootID, "status": "queued"})
}

func (rt *Router) recordQuery(endpoint string, response *domain.QueryResponse, duration time.Duration) {
	if rt.metrics == nil || response == nil {
		return
	}
	outcome := "answered"
	if _, failed := response.Metadata["error"]; failed {
		outcome = "error"
		if len(response.Citations) == 0 && response.Confidence == 0 && response.Metadata["error"] == "no relevant content found" {
			outcome = "no_evidence"
		}
	}
	rt.metrics.RecordQuery(serviceName, endpoint, outcome, len(response.Citations), response.Confidence, duration)

	if sources, ok := response.Metadata["sources_used"].(domain.SourcesUsed); ok {
		branch := "chunks_only"
		if sources.Summaries > 0 {
			branch = "comprehensive"
		}
		rt.metrics.RecordSynthesisBranch(serviceName, branch)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
