package tools

import "github.com/caster-hub/caster/pkg/receipts"

// Pricing converts tool invocations into USD charges. Search calls carry a
// flat per-call price; chat calls are priced from the provider usage block.
type Pricing struct {
	SearchCallUSD         float64
	LLMPromptUSDPer1K     float64
	LLMCompletionUSDPer1K float64
}

// DefaultPricing matches the platform's published rate card.
func DefaultPricing() Pricing {
	return Pricing{
		SearchCallUSD:         0.005,
		LLMPromptUSDPer1K:     0.0025,
		LLMCompletionUSDPer1K: 0.01,
	}
}

// FlatCost returns the fixed per-call price known before dispatch.
// Token-priced tools return zero; their cost is only known from the
// provider's usage block afterwards.
func (p Pricing) FlatCost(tool string) float64 {
	switch tool {
	case ToolSearchWeb, ToolSearchX:
		return p.SearchCallUSD
	default:
		return 0
	}
}

// Price returns the USD cost of one completed call and, for token-priced
// tools, the usage extracted from the payload.
func (p Pricing) Price(tool string, payload map[string]any) (float64, *receipts.Usage) {
	switch tool {
	case ToolSearchWeb, ToolSearchX:
		return p.SearchCallUSD, nil
	case ToolLLMChat:
		usage := usageFromPayload(payload)
		if usage == nil {
			return 0, nil
		}
		cost := float64(usage.PromptTokens)/1000*p.LLMPromptUSDPer1K +
			float64(usage.CompletionTokens)/1000*p.LLMCompletionUSDPer1K
		usage.CostUSD = cost
		return cost, usage
	default:
		return 0, nil
	}
}

func usageFromPayload(payload map[string]any) *receipts.Usage {
	raw, ok := payload["usage"].(map[string]any)
	if !ok {
		return nil
	}
	u := &receipts.Usage{}
	if s, ok := raw["provider"].(string); ok {
		u.Provider = s
	}
	if s, ok := raw["model"].(string); ok {
		u.Model = s
	}
	u.PromptTokens = intField(raw, "prompt_tokens")
	u.CompletionTokens = intField(raw, "completion_tokens")
	u.TotalTokens = intField(raw, "total_tokens")
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
