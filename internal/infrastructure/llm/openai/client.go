package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/collision-estimator/internal/core/ports"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
)

const maxEmbedBatch = 100

type Client struct {
	api        *sdk.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

// New builds a client for the OpenAI API or any compatible endpoint when
// baseURL is set.
func New(apiKey, baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	cfg := sdk.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:        sdk.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		embedModel: embedModel,
		executor:   executor,
	}
}

// Completer implements ports.CompletionModel with the chat completions API.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Name() string {
	return c.client.chatModel
}

func (c *Completer) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	messages := make([]sdk.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, sdk.ChatCompletionMessage{Role: sdk.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, sdk.ChatCompletionMessage{Role: sdk.ChatMessageRoleUser, Content: req.User})

	apiReq := sdk.ChatCompletionRequest{
		Model:       c.client.chatModel,
		Messages:    messages,
		Temperature: 0,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &sdk.ChatCompletionResponseFormat{
			Type: sdk.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := call(ctx, c.client.executor, "openai.chat", func(ctx context.Context) (sdk.ChatCompletionResponse, error) {
		return c.client.api.CreateChatCompletion(ctx, apiReq)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat: response has no choices")
	}

	model := resp.Model
	if model == "" {
		model = c.client.chatModel
	}
	return &ports.CompletionResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Name() string {
	return "openai/" + e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxEmbedBatch {
		batch := texts[i:min(i+maxEmbedBatch, len(texts))]
		resp, err := call(ctx, e.client.executor, "openai.embed", func(ctx context.Context) (sdk.EmbeddingResponse, error) {
			return e.client.api.CreateEmbeddings(ctx, sdk.EmbeddingRequest{
				Input: batch,
				Model: sdk.EmbeddingModel(e.client.embedModel),
			})
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embed: returned %d embeddings, expected %d", len(resp.Data), len(batch))
		}
		vectors := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) {
				return nil, fmt.Errorf("openai embed: index %d out of range", item.Index)
			}
			vectors[item.Index] = item.Embedding
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func call[T any](ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if executor == nil {
		out, err = fn(ctx)
	} else {
		out, err = resilience.Call(ctx, executor, operation, fn, classifyOpenAIError)
	}
	return out, resilience.MarkTemporary(operation, err, classifyOpenAIError)
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if status := httpStatus(err); status != 0 {
		return resilience.ClassifyHTTPStatus(status)
	}
	return resilience.ClassifyTransport(err)
}

func httpStatus(err error) int {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
