package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CostLine is one itemized row of an estimate. UnitCostUSD is the base price
// before conversion, ConvertedTotal is quantity * unit cost in the target
// currency.
type CostLine struct {
	Description    string  `json:"description"`
	UnitCostUSD    float64 `json:"usd_per_unit"`
	Quantity       float64 `json:"quantity"`
	ConvertedTotal float64 `json:"converted_total"`
}

// Estimate is the structured output contract the model must satisfy.
type Estimate struct {
	Verdict         string     `json:"final_technical_verdict"`
	MaterialCosts   []CostLine `json:"material_costs"`
	LaborAndOHCosts []CostLine `json:"labor_and_oh_costs"`
	EvidenceSource  string     `json:"evidence_source"`
	GrandTotal      float64    `json:"grand_total"`
	ExchangeRate    float64    `json:"exchange_rate"`
}

// MarshalJSON writes absent cost lists as empty arrays; the contract does not
// accept null for either list.
func (e Estimate) MarshalJSON() ([]byte, error) {
	type wire Estimate
	out := wire(e)
	if out.MaterialCosts == nil {
		out.MaterialCosts = []CostLine{}
	}
	if out.LaborAndOHCosts == nil {
		out.LaborAndOHCosts = []CostLine{}
	}
	return json.Marshal(out)
}

type Intent string

const (
	IntentFinancial Intent = "financial"
	IntentTechnical Intent = "technical"
)

type EstimateRequest struct {
	Description string `json:"description"`
	Currency    string `json:"currency,omitempty"`
}

// EstimateResult is an estimate after reconciliation together with the
// degradation metadata callers must be able to surface.
type EstimateResult struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Estimate    Estimate        `json:"estimate"`
	Intent      Intent          `json:"intent"`
	Currency    string          `json:"currency"`
	Rate        RateSnapshot    `json:"rate"`
	Retrieval   RetrievalResult `json:"retrieval"`
	Model       string          `json:"model"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (r *EstimateResult) ExchangeRateApplied() string {
	return fmt.Sprintf("1 %s = %s %s", BaseCurrency, FormatRate(r.Rate.Rate), r.Currency)
}

func FormatRate(rate float64) string {
	return fmt.Sprintf("%g", rate)
}
