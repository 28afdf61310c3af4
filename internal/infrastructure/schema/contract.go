// Package schema holds the machine-checkable output contract for estimates.
// The OpenAPI document in openapi.yaml is the single source of truth: the
// prompt embeds its JSON rendering and model output is validated against it.
package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/samber/mo"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

//go:embed openapi.yaml
var openAPIDocument []byte

var errNoJSONObject = errors.New("no JSON object in model output")

type EstimateContract struct {
	estimate    *openapi3.Schema
	description string
}

func New(ctx context.Context) (*EstimateContract, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	estimateRef := doc.Components.Schemas["Estimate"]
	costLineRef := doc.Components.Schemas["CostLine"]
	if estimateRef == nil || estimateRef.Value == nil || costLineRef == nil || costLineRef.Value == nil {
		return nil, errors.New("openapi document lacks Estimate or CostLine schema")
	}

	rendered, err := json.MarshalIndent(map[string]any{
		"components": map[string]any{
			"schemas": map[string]any{
				"Estimate": estimateRef.Value,
				"CostLine": costLineRef.Value,
			},
		},
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render estimate schema: %w", err)
	}

	return &EstimateContract{
		estimate:    estimateRef.Value,
		description: string(rendered),
	}, nil
}

// Document returns the raw OpenAPI document served over HTTP.
func Document() []byte {
	return openAPIDocument
}

// Describe returns the JSON rendering of the Estimate schema for prompts.
func (c *EstimateContract) Describe() string {
	return c.description
}

// Parse validates raw model output and decodes it. Any missing field, wrong
// type or malformed JSON is a schema violation carrying the raw text.
func (c *EstimateContract) Parse(raw string) mo.Result[domain.Estimate] {
	body, err := extractObject(raw)
	if err != nil {
		return mo.Err[domain.Estimate](domain.NewSchemaViolation(raw, err))
	}

	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return mo.Err[domain.Estimate](domain.NewSchemaViolation(raw, fmt.Errorf("decode json: %w", err)))
	}
	if err := c.estimate.VisitJSON(generic, openapi3.MultiErrors()); err != nil {
		return mo.Err[domain.Estimate](domain.NewSchemaViolation(raw, fmt.Errorf("validate estimate: %w", err)))
	}

	var estimate domain.Estimate
	if err := json.Unmarshal([]byte(body), &estimate); err != nil {
		return mo.Err[domain.Estimate](domain.NewSchemaViolation(raw, fmt.Errorf("decode estimate: %w", err)))
	}
	return mo.Ok(estimate)
}

// extractObject tolerates markdown fences and prose around a single object.
func extractObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errNoJSONObject
	}
	return text[start : end+1], nil
}
