package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/collision-estimator/internal/infrastructure/resilience"
)

// StatusError is a non-2xx reply from the Ollama server. Body is truncated.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("ollama %s: HTTP %d", e.Operation, e.StatusCode)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// postJSON sends payload to path and decodes the reply into out, under the
// executor's retry and breaker policy when one is configured.
func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	op := "ollama." + operation

	send := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, op, send, classifyOllamaError)
	} else {
		err = send(ctx)
	}
	return resilience.MarkTemporary(op, err, classifyOllamaError)
}

func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.ClassifyTransport(err)
}
