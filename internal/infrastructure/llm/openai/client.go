package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/compiledanswers/policy-rag/internal/infrastructure/resilience"
)

// Config describes one OpenAI-compatible endpoint. Azure OpenAI, vLLM and
// LiteLLM gateways all speak this surface.
type Config struct {
	BaseURL         string
	APIKey          string
	EmbedModel      string
	CompletionModel string
	Temperature     float64
	MaxTokens       int
	TopP            float64
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.cfg.EmbedModel,
		"input": texts,
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := e.client.execute(ctx, "embeddings", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/v1/embeddings", request, &response, "embeddings")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings count mismatch: got %d, want %d", len(response.Data), len(texts))
	}

	// The API documents input order but indexes defensively.
	vectors := make([][]float32, len(texts))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model": c.client.cfg.CompletionModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": c.client.cfg.Temperature,
		"stream":      false,
	}
	if c.client.cfg.MaxTokens > 0 {
		request["max_tokens"] = c.client.cfg.MaxTokens
	}
	if c.client.cfg.TopP > 0 {
		request["top_p"] = c.client.cfg.TopP
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := c.client.execute(ctx, "chat_completion", func(ctx context.Context) error {
		return c.client.postJSON(ctx, "/v1/chat/completions", request, &response, "chat_completion")
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, fn(ctx))
	}
	err := c.executor.Execute(ctx, operation, fn, classifyOpenAIError)
	return wrapTemporaryIfNeeded(operation, err)
}
