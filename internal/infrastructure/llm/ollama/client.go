package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/collision-estimator/internal/core/ports"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds a client for a local Ollama server. Request deadlines come from
// the caller's context; the HTTP timeout is only a backstop.
func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 180 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Name() string {
	return "ollama/" + e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Completer implements ports.CompletionModel over /api/chat.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Name() string {
	return "ollama/" + c.client.genModel
}

func (c *Completer) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})

	reqBody := map[string]any{
		"model":    c.client.genModel,
		"messages": messages,
		"stream":   false,
		"options":  map[string]any{"temperature": 0},
	}
	if req.JSONMode {
		reqBody["format"] = "json"
	}

	var response struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := c.client.postJSON(ctx, "/api/chat", reqBody, &response, "chat"); err != nil {
		return nil, err
	}

	model := response.Model
	if model == "" {
		model = c.client.genModel
	}
	return &ports.CompletionResponse{
		Content:          strings.TrimSpace(response.Message.Content),
		Model:            model,
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
	}, nil
}
