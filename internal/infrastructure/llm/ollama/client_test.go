package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
)

func TestCompleterSendsSystemAndJSONFormat(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","message":{"role":"assistant","content":" {\"ok\":true} "},"prompt_eval_count":12,"eval_count":5}`))
	}))
	defer server.Close()

	completer := NewCompleter(New(server.URL, "llama3.1:8b", "nomic-embed-text", nil))
	resp, err := completer.Complete(context.Background(), ports.CompletionRequest{
		System:   "You are a senior collision adjuster.",
		User:     "Dented rear door",
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != `{"ok":true}` || resp.PromptTokens != 12 || resp.CompletionTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if payload["format"] != "json" {
		t.Fatalf("expected json format, got %v", payload["format"])
	}
	messages, _ := payload["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", payload["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || !strings.Contains(first["content"].(string), "collision adjuster") {
		t.Fatalf("unexpected system message: %v", first)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be wrapped as temporary, got %v", err)
	}
}

func TestEmbedRetriesThroughExecutor(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	embedder := NewEmbedder(New(server.URL, "gen", "embed", exec))
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || calls != 2 {
		t.Fatalf("expected 2 vectors after one retry, got %d vectors in %d calls", len(vectors), calls)
	}
}

func TestBadRequestIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewCompleter(New(server.URL, "missing", "embed", nil)).Complete(context.Background(), ports.CompletionRequest{User: "x"})
	if err == nil || errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
