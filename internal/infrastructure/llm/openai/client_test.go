package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
)

func TestCompleteSendsModelSettingsAndTrimsAnswer(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  the answer \n"}}]}`))
	}))
	defer server.Close()

	client := New(Config{
		BaseURL:         server.URL,
		APIKey:          "secret",
		CompletionModel: "gpt-4o-mini",
		Temperature:     0.1,
		MaxTokens:       512,
	}, nil)

	answer, err := NewCompleter(client).Complete(context.Background(), "question?")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("expected trimmed answer, got %q", answer)
	}
	if captured["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %v", captured["model"])
	}
	if captured["max_tokens"] != float64(512) {
		t.Fatalf("unexpected max_tokens: %v", captured["max_tokens"])
	}
	if captured["stream"] != false {
		t.Fatalf("completions must not stream")
	}
}

func TestEmbedOrdersVectorsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.2]},
			{"index":0,"embedding":[0.1]}
		]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EmbedModel: "text-embedding-3-small"}, nil)
	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.2 {
		t.Fatalf("vectors must follow input order, got %v", vectors)
	}
}

func TestEmbedCountMismatchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1]}]}`))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EmbedModel: "embed"}, nil)
	if _, err := NewEmbedder(client).Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}

func TestRetryableStatusWrapsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, CompletionModel: "gpt"}, nil)
	_, err := NewCompleter(client).Complete(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable status must be marked temporary, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream overloaded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestClientErrorIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, CompletionModel: "gpt"}, nil)
	_, err := NewCompleter(client).Complete(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("4xx must not be marked temporary: %v", err)
	}
}
