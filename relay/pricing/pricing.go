// Package pricing computes per-request cost from catalog prices. All money
// math runs in decimals; callers convert to float only at the storage or API
// boundary.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/llmgateway/llmgateway/catalog"
)

// Token equivalents for image content. Input images bill at a flat rate;
// output images depend on the requested size.
const (
	ImageInputTokens    = 560
	ImageOutputTokens   = 1120
	ImageOutputTokens4K = 2000
)

// Input carries everything the engine needs for one request.
type Input struct {
	ModelID    string // catalog id or provider mapping name
	ProviderID string

	PromptTokens     *int
	CompletionTokens *int
	CachedTokens     *int
	ReasoningTokens  *int

	InputImageCount  int
	OutputImageCount int
	ImageSize        string // "4K" selects the large output rate
	WebSearchCount   int

	// EstimationText is the concatenated prompt+completion text used to
	// estimate tokens when the upstream reported none.
	EstimationText string
}

// Cost is the per-component breakdown. All components are zero decimals when
// they do not apply; Total always equals their sum.
type Cost struct {
	Total            decimal.Decimal
	Input            decimal.Decimal
	Output           decimal.Decimal
	CachedInput      decimal.Decimal
	Request          decimal.Decimal
	ImageInput       decimal.Decimal
	ImageOutput      decimal.Decimal
	WebSearch        decimal.Decimal
	PromptTokens     int
	CompletionTokens int
	PricingTier      string
	Discount         float64
	Estimated        bool
}

// Calculate prices one request. Returns nil when the model or mapping is
// unknown, or when no token counts are available even after estimation.
func Calculate(reg *catalog.Registry, in Input) *Cost {
	m := reg.FindModel(in.ModelID)
	if m == nil {
		return nil
	}
	mapping := m.MappingFor(in.ProviderID)
	if mapping == nil {
		return nil
	}

	promptTokens := in.PromptTokens
	completionTokens := in.CompletionTokens
	estimated := false
	if promptTokens == nil && in.EstimationText != "" {
		n := EstimateTokens(in.EstimationText)
		promptTokens = &n
		estimated = true
	}
	if promptTokens == nil {
		return nil
	}

	prompt := *promptTokens
	imageInputTokens := 0
	if mapping.ImageInputPrice != nil && in.InputImageCount > 0 {
		imageInputTokens = in.InputImageCount * ImageInputTokens
		prompt += imageInputTokens
	}
	completion := 0
	if completionTokens != nil {
		completion = *completionTokens
	}
	cached := 0
	if in.CachedTokens != nil {
		cached = *in.CachedTokens
	}
	reasoning := 0
	if in.ReasoningTokens != nil {
		reasoning = *in.ReasoningTokens
	}

	inputPrice, outputPrice, cachedInputPrice, tierName := selectTier(mapping, prompt)
	multiplier := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(mapping.Discount))

	c := &Cost{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		PricingTier:      tierName,
		Discount:         mapping.Discount,
		Estimated:        estimated,
	}

	// Image tokens count toward the reported prompt total but are priced at
	// the image rate below, not the text rate.
	uncachedPrompt := prompt - imageInputTokens - cached
	if uncachedPrompt < 0 {
		uncachedPrompt = 0
	}
	c.Input = decimal.NewFromInt(int64(uncachedPrompt)).Mul(inputPrice).Mul(multiplier)

	totalOutputTokens := completion + reasoning
	if mapping.ImageOutputPrice != nil && in.OutputImageCount > 0 {
		perImage := ImageOutputTokens
		if in.ImageSize == "4K" {
			perImage = ImageOutputTokens4K
		}
		imageTokens := in.OutputImageCount * perImage
		if imageTokens > totalOutputTokens {
			imageTokens = totalOutputTokens
		}
		textTokens := totalOutputTokens - imageTokens
		c.Output = decimal.NewFromInt(int64(textTokens)).Mul(outputPrice).Mul(multiplier)
		c.ImageOutput = decimal.NewFromInt(int64(imageTokens)).
			Mul(decimal.NewFromFloat(*mapping.ImageOutputPrice)).Mul(multiplier)
	} else {
		c.Output = decimal.NewFromInt(int64(totalOutputTokens)).Mul(outputPrice).Mul(multiplier)
	}

	if cached > 0 && cachedInputPrice != nil {
		c.CachedInput = decimal.NewFromInt(int64(cached)).Mul(*cachedInputPrice).Mul(multiplier)
	}
	if imageInputTokens > 0 {
		c.ImageInput = decimal.NewFromInt(int64(imageInputTokens)).
			Mul(decimal.NewFromFloat(*mapping.ImageInputPrice)).Mul(multiplier)
	}
	if mapping.RequestPrice != nil {
		c.Request = decimal.NewFromFloat(*mapping.RequestPrice).Mul(multiplier)
	}
	if mapping.WebSearchPrice != nil && in.WebSearchCount > 0 {
		c.WebSearch = decimal.NewFromInt(int64(in.WebSearchCount)).
			Mul(decimal.NewFromFloat(*mapping.WebSearchPrice)).Mul(multiplier)
	}

	c.Total = c.Input.Add(c.Output).Add(c.CachedInput).Add(c.Request).
		Add(c.ImageInput).Add(c.ImageOutput).Add(c.WebSearch)
	return c
}

// selectTier picks the first tier big enough for the prompt; prompts above
// every tier fall back to the mapping's base prices.
func selectTier(mapping *catalog.Mapping, promptTokens int) (input, output decimal.Decimal, cachedInput *decimal.Decimal, name string) {
	for i := range mapping.PricingTiers {
		t := &mapping.PricingTiers[i]
		if promptTokens <= t.UpToTokens {
			input = decimal.NewFromFloat(t.InputPrice)
			output = decimal.NewFromFloat(t.OutputPrice)
			if t.CachedInputPrice != nil {
				d := decimal.NewFromFloat(*t.CachedInputPrice)
				cachedInput = &d
			}
			return input, output, cachedInput, t.Name
		}
	}
	input = decimal.NewFromFloat(mapping.InputPrice)
	output = decimal.NewFromFloat(mapping.OutputPrice)
	if mapping.CachedInputPrice != nil {
		d := decimal.NewFromFloat(*mapping.CachedInputPrice)
		cachedInput = &d
	}
	return input, output, cachedInput, ""
}
