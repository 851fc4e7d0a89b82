package router

// Pricing holds per-million-token pricing for a model.
type Pricing struct {
	InputPerMTok  float64 // USD per million input tokens
	OutputPerMTok float64 // USD per million output tokens
}

// pricingTable maps gateway model ids to their pricing.
var pricingTable = map[string]Pricing{
	ModelPremium:  {InputPerMTok: 1.25, OutputPerMTok: 10},
	ModelStandard: {InputPerMTok: 0.30, OutputPerMTok: 2.50},
	ModelEconomy:  {InputPerMTok: 0.10, OutputPerMTok: 0.40},
}

// PricingFor returns pricing for a model. Unknown model ids fall back to the
// standard tier's row rather than erroring, so a gateway-side model rename
// degrades to slightly-wrong accounting instead of failed requests.
func PricingFor(model string) Pricing {
	if p, ok := pricingTable[model]; ok {
		return p
	}
	return pricingTable[ModelStandard]
}

// Cost computes the estimated USD cost of a request.
func Cost(model string, tokensIn, tokensOut int) float64 {
	p := PricingFor(model)
	return (float64(tokensIn)*p.InputPerMTok + float64(tokensOut)*p.OutputPerMTok) / 1_000_000
}
