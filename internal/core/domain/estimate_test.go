package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEstimateMarshalWritesEmptyCostLists(t *testing.T) {
	raw, err := json.Marshal(Estimate{Verdict: "Mixing ratio is 4:1.", ExchangeRate: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(raw)
	if !strings.Contains(got, `"material_costs":[]`) || !strings.Contains(got, `"labor_and_oh_costs":[]`) {
		t.Fatalf("expected empty cost lists, got %s", got)
	}

	nested, err := json.Marshal(EstimateResult{ID: "e-1", Estimate: Estimate{Verdict: "ok"}})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if !strings.Contains(string(nested), `"id":"e-1"`) || !strings.Contains(string(nested), `"material_costs":[]`) {
		t.Fatalf("unexpected result encoding: %s", nested)
	}
}
