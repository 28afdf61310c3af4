package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

type fakeEstimator struct {
	got    domain.EstimateRequest
	result *domain.EstimateResult
	err    error
}

func (f *fakeEstimator) Estimate(_ context.Context, req domain.EstimateRequest) (*domain.EstimateResult, error) {
	f.got = req
	return f.result, f.err
}

type fakeSearcher struct {
	gotQuery string
	gotK     int
	result   domain.RetrievalResult
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) (domain.RetrievalResult, error) {
	f.gotQuery = query
	f.gotK = k
	return f.result, f.err
}

type fakeIndexer struct {
	status domain.IndexStatus
}

func (f *fakeIndexer) Rebuild(context.Context) (domain.IndexStatus, error) { return f.status, nil }
func (f *fakeIndexer) Status() domain.IndexStatus                       { return f.status }

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
		required []string
	}{
		{estimateRepairTool, "estimate_repair", []string{"description"}},
		{searchManualsTool, "search_manuals", []string{"query"}},
		{indexStatusTool, "index_status", nil},
	}
	for _, tt := range tests {
		if tt.tool.Name != tt.wantName {
			t.Fatalf("expected tool name %q, got %q", tt.wantName, tt.tool.Name)
		}
		if strings.Join(tt.tool.InputSchema.Required, ",") != strings.Join(tt.required, ",") {
			t.Fatalf("%s: expected required %v, got %v", tt.wantName, tt.required, tt.tool.InputSchema.Required)
		}
	}
}

func TestEstimateRepairReturnsReconciledEstimate(t *testing.T) {
	estimator := &fakeEstimator{result: &domain.EstimateResult{
		ID:       "est-1",
		Intent:   domain.IntentFinancial,
		Currency: "EUR",
		Estimate: domain.Estimate{
			Verdict:        "Refinish hood",
			EvidenceSource: "hood_manual.txt",
			GrandTotal:     92,
			ExchangeRate:   0.92,
		},
		Rate:      domain.RateSnapshot{Base: "USD", Target: "EUR", Rate: 0.92, Source: domain.RateSourceLive},
		Retrieval: domain.RetrievalResult{Sources: []string{"hood_manual.txt"}},
	}}
	s := NewServer(estimator, &fakeSearcher{}, &fakeIndexer{})

	result, err := s.handleEstimateRepair(context.Background(), callRequest(map[string]any{
		"description": "Estimate clear coat cost for a hood",
		"currency":    "EUR",
	}))
	if err != nil {
		t.Fatalf("handleEstimateRepair: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if estimator.got.Currency != "EUR" || estimator.got.Description != "Estimate clear coat cost for a hood" {
		t.Fatalf("unexpected request forwarded: %+v", estimator.got)
	}

	var payload estimateResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	if payload.EstimateID != "est-1" || payload.ExchangeRateApplied != "1 USD = 0.92 EUR" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Estimate.GrandTotal != 92 {
		t.Fatalf("expected grand total 92, got %v", payload.Estimate.GrandTotal)
	}
}

func TestEstimateRepairMissingDescription(t *testing.T) {
	s := NewServer(&fakeEstimator{}, &fakeSearcher{}, &fakeIndexer{})
	result, err := s.handleEstimateRepair(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handleEstimateRepair: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for missing description")
	}
}

func TestEstimateRepairSurfacesFailure(t *testing.T) {
	estimator := &fakeEstimator{err: domain.NewProviderFailure(errors.New("connection refused"))}
	s := NewServer(estimator, &fakeSearcher{}, &fakeIndexer{})
	result, err := s.handleEstimateRepair(context.Background(), callRequest(map[string]any{"description": "dent"}))
	if err != nil {
		t.Fatalf("handleEstimateRepair: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error")
	}
	if !strings.Contains(resultText(t, result), "connection refused") {
		t.Fatalf("expected provider detail in error, got %q", resultText(t, result))
	}
}

func TestSearchManualsFormatsSegments(t *testing.T) {
	searcher := &fakeSearcher{result: domain.RetrievalResult{
		IndexState: domain.IndexReady,
		Sources:    []string{"hood_manual.txt"},
		Segments: []domain.RetrievedSegment{
			{DocumentName: "hood_manual.txt", Text: "Apply two coats of clear.", Position: 0, Score: 0.81},
		},
	}}
	s := NewServer(&fakeEstimator{}, searcher, &fakeIndexer{})

	result, err := s.handleSearchManuals(context.Background(), callRequest(map[string]any{
		"query": "clear coat",
		"k":     float64(3),
	}))
	if err != nil {
		t.Fatalf("handleSearchManuals: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error")
	}
	if searcher.gotQuery != "clear coat" || searcher.gotK != 3 {
		t.Fatalf("unexpected search args: %q k=%d", searcher.gotQuery, searcher.gotK)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "hood_manual.txt") || !strings.Contains(text, "Apply two coats of clear.") {
		t.Fatalf("unexpected search output: %q", text)
	}
}

func TestSearchManualsWithoutIndex(t *testing.T) {
	searcher := &fakeSearcher{result: domain.RetrievalResult{IndexState: domain.IndexAbsent}}
	s := NewServer(&fakeEstimator{}, searcher, &fakeIndexer{})

	result, err := s.handleSearchManuals(context.Background(), callRequest(map[string]any{"query": "clear coat"}))
	if err != nil {
		t.Fatalf("handleSearchManuals: %v", err)
	}
	if result.IsError {
		t.Fatalf("absent index is not a tool error")
	}
	if !strings.Contains(resultText(t, result), "No manuals are indexed") {
		t.Fatalf("unexpected output: %q", resultText(t, result))
	}
	if searcher.gotK != 0 {
		t.Fatalf("expected default k to be delegated, got %d", searcher.gotK)
	}
}

func TestIndexStatusReportsState(t *testing.T) {
	s := NewServer(&fakeEstimator{}, &fakeSearcher{}, &fakeIndexer{status: domain.IndexStatus{
		State:      domain.IndexReady,
		Backend:    "memory",
		Generation: 2,
		Segments:   14,
	}})
	result, err := s.handleIndexStatus(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleIndexStatus: %v", err)
	}
	var status domain.IndexStatus
	if err := json.Unmarshal([]byte(resultText(t, result)), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != domain.IndexReady || status.Segments != 14 || status.Generation != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
}
