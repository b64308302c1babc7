// Package cost maps model identifiers and token counts to USD figures.
//
// The table is a pure lookup; unknown models cost zero so that derivation
// never fails on custom or local models.
package cost

// Pricing is the USD price per million tokens for one model.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// pricing is the built-in model price table.
var pricing = map[string]Pricing{
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4-turbo":       {InputPerMTok: 10.00, OutputPerMTok: 30.00},
	"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-opus":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"gemini-1.5-pro":    {InputPerMTok: 1.25, OutputPerMTok: 5.00},
	"gemini-1.5-flash":  {InputPerMTok: 0.075, OutputPerMTok: 0.30},
}

// Lookup returns the pricing for a model and whether it is known.
func Lookup(model string) (Pricing, bool) {
	p, ok := pricing[model]
	return p, ok
}

// Compute returns the USD cost for a call. Unknown models cost zero.
func Compute(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
}
