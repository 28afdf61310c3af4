package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

const (
	backendName   = "qdrant"
	upsertBatch   = 256
	tieBreakSlack = 16
)

// Builder materializes each index generation as its own Qdrant collection.
// The collection name carries a per-process instance id so replicas sharing
// one Qdrant never clobber each other's generations.
type Builder struct {
	baseURL    string
	prefix     string
	instance   string
	httpClient *http.Client
}

func NewBuilder(baseURL, prefix string) *Builder {
	if prefix == "" {
		prefix = "repair_manuals"
	}
	return &Builder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     prefix,
		instance:   strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Builder) Backend() string {
	return backendName
}

func (b *Builder) collectionName(generation int64) string {
	return fmt.Sprintf("%s_%s_g%d", b.prefix, b.instance, generation)
}

func (b *Builder) Build(ctx context.Context, generation int64, segments []domain.Segment, vectors [][]float32) (ports.SemanticIndex, error) {
	if len(segments) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build qdrant index", errors.New("no segments"))
	}
	if len(segments) != len(vectors) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build qdrant index",
			fmt.Errorf("segments/vectors mismatch: %d != %d", len(segments), len(vectors)))
	}

	index := &Index{
		baseURL:    b.baseURL,
		collection: b.collectionName(generation),
		httpClient: b.httpClient,
		count:      len(segments),
	}
	if err := index.create(ctx, len(vectors[0])); err != nil {
		return nil, err
	}
	for start := 0; start < len(segments); start += upsertBatch {
		end := min(start+upsertBatch, len(segments))
		if err := index.upsert(ctx, segments[start:end], vectors[start:end]); err != nil {
			_ = index.Release(context.WithoutCancel(ctx))
			return nil, err
		}
	}
	return index, nil
}

// Index is one generation's collection.
type Index struct {
	baseURL    string
	collection string
	httpClient *http.Client
	count      int
}

func (i *Index) Len() int {
	return i.count
}

func (i *Index) Collection() string {
	return i.collection
}

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (i *Index) create(ctx context.Context, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	status, err := i.do(ctx, http.MethodPut, "/collections/"+i.collection, reqBody, nil, "create collection")
	if status == http.StatusConflict {
		return nil
	}
	return err
}

func (i *Index) upsert(ctx context.Context, segments []domain.Segment, vectors [][]float32) error {
	points := make([]point, 0, len(segments))
	for n, seg := range segments {
		points = append(points, point{
			ID:     uint64(seg.Seq),
			Vector: vectors[n],
			Payload: map[string]any{
				"document": seg.DocumentName,
				"position": seg.Position,
				"seq":      seg.Seq,
				"text":     seg.Text,
			},
		})
	}
	_, err := i.do(ctx, http.MethodPut, "/collections/"+i.collection+"/points?wait=true", map[string]any{"points": points}, nil, "upsert")
	return err
}

// Search over-fetches a little so equal scores at the k boundary can be
// ordered by ingestion sequence before trimming.
func (i *Index) Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievedSegment, error) {
	if k <= 0 || i.count == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        min(i.count, k+tieBreakSlack),
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := i.do(ctx, http.MethodPost, "/collections/"+i.collection+"/points/search", reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedSegment, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedSegment{
			DocumentName: getStringPayload(r.Payload, "document"),
			Text:         getStringPayload(r.Payload, "text"),
			Position:     getIntPayload(r.Payload, "position"),
			Seq:          getIntPayload(r.Payload, "seq"),
			Score:        r.Score,
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Seq < out[b].Seq
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Release drops the collection once a newer generation is serving.
func (i *Index) Release(ctx context.Context) error {
	status, err := i.do(ctx, http.MethodDelete, "/collections/"+i.collection, nil, nil, "drop collection")
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (i *Index) do(ctx context.Context, method, path string, payload any, out any, operation string) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "qdrant "+operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			err = fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, trimmed)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			err = domain.WrapError(domain.ErrTemporary, "qdrant "+operation, err)
		}
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
