package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

const noContextMarker = "NO TECHNICAL CONTEXT AVAILABLE. Use general professional knowledge and say so in the verdict."

// ComposeInstruction builds the system instruction for one estimate. It is
// deterministic: the same inputs always produce the same text.
func ComposeInstruction(description, retrievedContext, schema string) string {
	intent := DetectIntent(description)

	var b strings.Builder
	b.WriteString("You are a Senior Collision Adjuster working for a certified body shop. ")
	b.WriteString("Your primary goal is a detailed, itemized repair cost estimate. ")
	b.WriteString("Use the technical context below to justify material quantities, mixing ratios and process steps. ")
	b.WriteString("Use your professional judgment for typical market prices and labor hours (LOH).\n\n")

	b.WriteString("OUTPUT CONTRACT (mandatory):\n")
	b.WriteString("- Reply with exactly one JSON object and nothing else: no prose, no markdown fences.\n")
	b.WriteString("- The object MUST conform to the schema below: every required field present, every type exact, no extra nesting.\n")
	b.WriteString("- Numbers are JSON numbers, never strings. Empty cost lists are [] and never null.\n")
	b.WriteString("- final_technical_verdict must be professional, human and specific to the damage described.\n\n")

	b.WriteString("RULES FOR FINANCIAL REQUESTS:\n")
	b.WriteString("- Price every line in USD (usd_per_unit) and convert it with the exchange rate given in the task (converted_total = quantity * usd_per_unit * rate).\n")
	b.WriteString("- grand_total is the sum of all converted_total values; exchange_rate is the rate you applied.\n")
	b.WriteString("- State the exchange rate used in the verdict.\n\n")

	b.WriteString("RULES FOR TECHNICAL REQUESTS:\n")
	b.WriteString("- Answer strictly from the technical context. Never invent procedures, products or ratios that it does not contain.\n")
	b.WriteString("- If the context does not cover the question, say so in the verdict.\n")
	b.WriteString("- Cost lists may be empty; set exchange_rate to 1 and grand_total to the USD sum.\n\n")

	b.WriteString("REQUEST MODE: ")
	b.WriteString(strings.ToUpper(string(intent)))
	b.WriteString("\n\n--- TECHNICAL CONTEXT ---\n")
	if strings.TrimSpace(retrievedContext) == "" {
		b.WriteString(noContextMarker)
	} else {
		b.WriteString(retrievedContext)
	}
	b.WriteString("\n\n--- RESPONSE JSON SCHEMA ---\n")
	b.WriteString(schema)
	b.WriteString("\n")
	return b.String()
}

// EnhanceDescription appends the authoritative exchange rate to a financial
// request so the model converts with it instead of a remembered rate.
func EnhanceDescription(description string, rate domain.RateSnapshot, intent domain.Intent) string {
	description = strings.TrimSpace(description)
	if intent != domain.IntentFinancial {
		return description
	}
	return description + ". NOTE: Use a strictly updated exchange rate of 1 " + domain.BaseCurrency + " = " +
		domain.FormatRate(rate.Rate) + " " + rate.Target + " for all financial calculations. " +
		"Report every converted_total and the grand_total in " + rate.Target + "."
}

var (
	currencyCodePattern = regexp.MustCompile(`\b(USD|EUR|ARS|MXN|GBP|BRL|CLP|COP|CAD)\b`)
	costWordPattern     = regexp.MustCompile(`(?i)\b(cost|costs|price|prices|pricing|estimate|estimates|quote|budget|how much|total|labor rate|presupuesto|costo|costos|coste|precio|precios|cotizaci[oó]n|cu[aá]nto|valor|tarifa)\b`)
)

// "cop" and "cad" are ordinary words, so they only count in upper case.
var lowerCodePattern = regexp.MustCompile(`(?i)\b(usd|eur|ars|mxn|gbp|brl|clp)\b`)

type currencyWord struct {
	pattern *regexp.Regexp
	code    string
}

// Order matters: longer phrases before their prefixes.
var currencyWords = []currencyWord{
	{regexp.MustCompile(`(?i)\bpesos? argentinos?\b`), "ARS"},
	{regexp.MustCompile(`(?i)\bpesos? mexicanos?\b`), "MXN"},
	{regexp.MustCompile(`(?i)\bpesos? chilenos?\b`), "CLP"},
	{regexp.MustCompile(`(?i)\bpesos? colombianos?\b`), "COP"},
	{regexp.MustCompile(`(?i)\bcanadian dollars?\b`), "CAD"},
	{regexp.MustCompile(`(?i)\b(euros?)\b`), "EUR"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`(?i)\b(pounds? sterling|british pounds?|libras?)\b`), "GBP"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`(?i)\b(reais|real brasile[nñ]o)\b`), "BRL"},
	{regexp.MustCompile(`(?i)\b(dollars?|d[oó]lares|d[oó]lar)\b`), "USD"},
}

// DetectIntent classifies a description as financial when it names a currency
// or asks about cost, technical otherwise.
func DetectIntent(description string) domain.Intent {
	if _, ok := detectCurrencyMention(description); ok {
		return domain.IntentFinancial
	}
	if costWordPattern.MatchString(description) {
		return domain.IntentFinancial
	}
	return domain.IntentTechnical
}

// DetectCurrency resolves the target currency. An explicit request value wins
// over a mention in the description, which wins over fallback.
func DetectCurrency(description, requested, fallback string) string {
	if code := strings.ToUpper(strings.TrimSpace(requested)); code != "" {
		return code
	}
	if code, ok := detectCurrencyMention(description); ok {
		return code
	}
	if code := strings.ToUpper(strings.TrimSpace(fallback)); code != "" {
		return code
	}
	return domain.BaseCurrency
}

func detectCurrencyMention(description string) (string, bool) {
	if match := currencyCodePattern.FindString(description); match != "" {
		return match, true
	}
	if match := lowerCodePattern.FindString(description); match != "" {
		return strings.ToUpper(match), true
	}
	for _, word := range currencyWords {
		if word.pattern.MatchString(description) {
			return word.code, true
		}
	}
	return "", false
}
