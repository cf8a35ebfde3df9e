package cost

import "strings"

// ModelPricing is the list price of a model
type ModelPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // USD per 1M input tokens
	OutputCostPer1MTokens float64 // USD per 1M output tokens
	EstimatedOutputTokens int     // Typical summary response size
}

// PricingTable holds list prices for the supported summarization models
var PricingTable = map[string]ModelPricing{
	"claude-3-sonnet-20240229": {
		Model:                 "claude-3-sonnet-20240229",
		InputCostPer1MTokens:  3.00,
		OutputCostPer1MTokens: 15.00,
		EstimatedOutputTokens: 400,
	},
	"claude-3-haiku-20240307": {
		Model:                 "claude-3-haiku-20240307",
		InputCostPer1MTokens:  0.25,
		OutputCostPer1MTokens: 1.25,
		EstimatedOutputTokens: 400,
	},
	"claude-3-5-sonnet-20241022": {
		Model:                 "claude-3-5-sonnet-20241022",
		InputCostPer1MTokens:  3.00,
		OutputCostPer1MTokens: 15.00,
		EstimatedOutputTokens: 400,
	},
	"claude-sonnet-4-20250514": {
		Model:                 "claude-sonnet-4-20250514",
		InputCostPer1MTokens:  3.00,
		OutputCostPer1MTokens: 15.00,
		EstimatedOutputTokens: 400,
	},
	"gemini-flash-lite-latest": {
		Model:                 "gemini-flash-lite-latest",
		InputCostPer1MTokens:  0.10,
		OutputCostPer1MTokens: 0.40,
		EstimatedOutputTokens: 400,
	},
	"gemini-2.5-flash": {
		Model:                 "gemini-2.5-flash",
		InputCostPer1MTokens:  0.30,
		OutputCostPer1MTokens: 2.50,
		EstimatedOutputTokens: 400,
	},
	"gemini-1.5-flash": {
		Model:                 "gemini-1.5-flash",
		InputCostPer1MTokens:  0.075,
		OutputCostPer1MTokens: 0.30,
		EstimatedOutputTokens: 400,
	},
}

// DefaultModel is used for models missing from the pricing table
const DefaultModel = "claude-3-sonnet-20240229"

// Rates are per-token prices in USD
type Rates struct {
	Input  float64
	Output float64
}

// LookupPricing returns the pricing for model. Unknown models fall back to a
// family match on the name prefix, then to DefaultModel.
func LookupPricing(model string) (ModelPricing, bool) {
	if p, ok := PricingTable[model]; ok {
		return p, true
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "haiku"):
		return PricingTable["claude-3-haiku-20240307"], false
	case strings.HasPrefix(lower, "gemini") && strings.Contains(lower, "lite"):
		return PricingTable["gemini-flash-lite-latest"], false
	case strings.HasPrefix(lower, "gemini"):
		return PricingTable["gemini-2.5-flash"], false
	}
	return PricingTable[DefaultModel], false
}

// RatesFor returns the configured per-token rates, or the table rates of model
// when the configured ones are zero.
func RatesFor(model string, inputPerToken, outputPerToken float64) Rates {
	if inputPerToken > 0 || outputPerToken > 0 {
		return Rates{Input: inputPerToken, Output: outputPerToken}
	}
	p, _ := LookupPricing(model)
	return Rates{
		Input:  p.InputCostPer1MTokens / 1_000_000,
		Output: p.OutputCostPer1MTokens / 1_000_000,
	}
}

// Calculate returns the USD cost of a request
func (r Rates) Calculate(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*r.Input + float64(outputTokens)*r.Output
}
