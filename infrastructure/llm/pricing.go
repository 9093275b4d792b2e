package llm

import "strings"

// Pricing is the USD price per million tokens.
type Pricing struct {
	InputPerMTok  float64 `koanf:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `koanf:"output_per_mtok" json:"output_per_mtok"`
}

// Cost returns the price of a completion.
func (p Pricing) Cost(tokensIn, tokensOut int) float64 {
	return (float64(tokensIn)*p.InputPerMTok + float64(tokensOut)*p.OutputPerMTok) / 1e6
}

// Matched by longest prefix so dated snapshots resolve to their family.
var priceTable = map[string]Pricing{
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4.1-mini":      {InputPerMTok: 0.40, OutputPerMTok: 1.60},
	"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00},
	"gpt-4":             {InputPerMTok: 30.00, OutputPerMTok: 60.00},
	"gpt-3.5-turbo":     {InputPerMTok: 0.50, OutputPerMTok: 1.50},
	"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"gemini-2.0-flash":  {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"gemini-1.5-pro":    {InputPerMTok: 1.25, OutputPerMTok: 5.00},
}

// PricingFor returns the table entry with the longest prefix of model.
// Unknown models are free.
func PricingFor(model string) Pricing {
	var (
		best    Pricing
		bestLen int
	)
	for prefix, p := range priceTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best
}
