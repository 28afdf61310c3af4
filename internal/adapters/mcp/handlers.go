package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

type estimateResult struct {
	EstimateID          string          `json:"estimate_id"`
	Estimate            domain.Estimate `json:"estimate"`
	Intent              domain.Intent   `json:"intent"`
	Currency            string          `json:"currency"`
	ExchangeRateApplied string          `json:"exchange_rate_applied"`
	RateDegraded        bool            `json:"rate_degraded"`
	EvidenceSources     []string        `json:"evidence_sources"`
	RetrievalDegraded   bool            `json:"retrieval_degraded"`
}

func (s *Server) handleEstimateRepair(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}

	result, err := s.estimator.Estimate(ctx, domain.EstimateRequest{
		Description: description,
		Currency:    request.GetString("currency", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("estimate failed: %v", err)), nil
	}

	return jsonResult(estimateResult{
		EstimateID:          result.ID,
		Estimate:            result.Estimate,
		Intent:              result.Intent,
		Currency:            result.Currency,
		ExchangeRateApplied: result.ExchangeRateApplied(),
		RateDegraded:        result.Rate.Degraded,
		EvidenceSources:     result.Retrieval.Sources,
		RetrievalDegraded:   result.Retrieval.Degraded,
	})
}

func (s *Server) handleSearchManuals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	result, err := s.searcher.Search(ctx, query, request.GetInt("k", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if result.IndexState == domain.IndexAbsent {
		return mcp.NewToolResultText("No manuals are indexed yet. Add documents to the corpus directory and trigger a re-index."), nil
	}
	if len(result.Segments) == 0 {
		return mcp.NewToolResultText("No matching manual segments found."), nil
	}
	return mcp.NewToolResultText(formatSegments(result.Segments)), nil
}

func (s *Server) handleIndexStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.indexer.Status())
}

func formatSegments(segments []domain.RetrievedSegment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d segments:\n", len(segments))
	for i, segment := range segments {
		fmt.Fprintf(&b, "\n### %d. %s (segment %d, score %.3f)\n\n%s\n", i+1, segment.DocumentName, segment.Position, segment.Score, segment.Text)
	}
	return b.String()
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
