package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/llmgateway/llmgateway/catalog"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func testRegistry() *catalog.Registry {
	return catalog.NewRegistry(
		[]catalog.Provider{
			{ID: "google-ai-studio", Name: "Google AI Studio", Format: catalog.FormatGoogle},
			{ID: "zai", Name: "ZAI", Format: catalog.FormatOpenAI},
		},
		[]catalog.Model{
			{
				ID:     "tiered-model",
				Family: "gemini",
				Providers: []catalog.Mapping{
					{
						ProviderID: "google-ai-studio",
						ModelName:  "tiered-model-001",
						InputPrice: 2, OutputPrice: 6,
						Discount: 0.2,
						PricingTiers: []catalog.PricingTier{
							{Name: "standard", UpToTokens: 200000, InputPrice: 1.5, OutputPrice: 5},
						},
					},
				},
			},
			{
				ID:     "cached-model",
				Family: "claude",
				Providers: []catalog.Mapping{
					{
						ProviderID: "zai",
						ModelName:  "cached-model",
						InputPrice: 3, OutputPrice: 15,
						CachedInputPrice: floatPtr(0.3),
					},
				},
			},
			{
				ID:     "image-model",
				Family: "gemini",
				Output: []string{"text", "image"},
				Providers: []catalog.Mapping{
					{
						ProviderID: "google-ai-studio",
						ModelName:  "image-model",
						InputPrice: 0.3, OutputPrice: 2.5,
						ImageInputPrice:  floatPtr(0.3),
						ImageOutputPrice: floatPtr(30),
					},
				},
			},
			{
				ID:     "per-request-model",
				Family: "cogview",
				Providers: []catalog.Mapping{
					{
						ProviderID:     "zai",
						ModelName:      "per-request-model",
						RequestPrice:   floatPtr(0.06),
						WebSearchPrice: floatPtr(0.01),
					},
				},
			},
		},
	)
}

func TestCalculate_UnknownModelOrProvider(t *testing.T) {
	reg := testRegistry()
	require.Nil(t, Calculate(reg, Input{ModelID: "nope", ProviderID: "zai", PromptTokens: intPtr(10)}))
	require.Nil(t, Calculate(reg, Input{ModelID: "tiered-model", ProviderID: "zai", PromptTokens: intPtr(10)}))
}

func TestCalculate_NoTokensNoEstimation(t *testing.T) {
	reg := testRegistry()
	require.Nil(t, Calculate(reg, Input{ModelID: "cached-model", ProviderID: "zai"}))
}

func TestCalculate_TierSelectedBelowThreshold(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "tiered-model", ProviderID: "google-ai-studio",
		PromptTokens: intPtr(100000), CompletionTokens: intPtr(1000),
	})
	require.NotNil(t, c)
	require.Equal(t, "standard", c.PricingTier)
	require.True(t, c.Input.Equal(decimal.NewFromInt(100000).Mul(decimal.NewFromFloat(1.5)).Mul(decimal.NewFromFloat(0.8))),
		"got %s", c.Input)
	require.True(t, c.Output.Equal(decimal.NewFromInt(1000).Mul(decimal.NewFromInt(5)).Mul(decimal.NewFromFloat(0.8))))
}

func TestCalculate_FallsToBaseTierAboveThreshold(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "tiered-model", ProviderID: "google-ai-studio",
		PromptTokens: intPtr(250000), CompletionTokens: intPtr(1000), ReasoningTokens: intPtr(0),
	})
	require.NotNil(t, c)
	require.Empty(t, c.PricingTier)
	require.True(t, c.Input.Equal(decimal.NewFromInt(250000).Mul(decimal.NewFromInt(2)).Mul(decimal.NewFromFloat(0.8))),
		"got %s", c.Input)
	require.True(t, c.Output.Equal(decimal.NewFromInt(1000).Mul(decimal.NewFromInt(6)).Mul(decimal.NewFromFloat(0.8))))
	require.Equal(t, 0.2, c.Discount)
	require.False(t, c.Estimated)
}

func TestCalculate_CachedTokens(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "cached-model", ProviderID: "zai",
		PromptTokens: intPtr(1000), CompletionTokens: intPtr(100), CachedTokens: intPtr(400),
	})
	require.NotNil(t, c)
	// 600 uncached at 3, 400 cached at 0.3.
	require.True(t, c.Input.Equal(decimal.NewFromInt(1800)))
	require.True(t, c.CachedInput.Equal(decimal.NewFromInt(120)))
	require.True(t, c.Total.Equal(c.Input.Add(c.Output).Add(c.CachedInput)))
}

func TestCalculate_CachedCostZeroWithoutCachedTokens(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "cached-model", ProviderID: "zai",
		PromptTokens: intPtr(1000), CompletionTokens: intPtr(100),
	})
	require.NotNil(t, c)
	require.True(t, c.CachedInput.IsZero())
}

func TestCalculate_ReasoningBilledAsOutput(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "cached-model", ProviderID: "zai",
		PromptTokens: intPtr(10), CompletionTokens: intPtr(100), ReasoningTokens: intPtr(50),
	})
	require.NotNil(t, c)
	require.True(t, c.Output.Equal(decimal.NewFromInt(150).Mul(decimal.NewFromInt(15))))
}

func TestCalculate_ImageTokens(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "image-model", ProviderID: "google-ai-studio",
		PromptTokens: intPtr(100), CompletionTokens: intPtr(1500),
		InputImageCount: 1, OutputImageCount: 1,
	})
	require.NotNil(t, c)
	// One input image adds 560 prompt tokens billed at the image input rate;
	// the 100 text tokens stay on the text rate.
	require.Equal(t, 660, c.PromptTokens)
	require.True(t, c.ImageInput.Equal(decimal.NewFromInt(560).Mul(decimal.NewFromFloat(0.3))))
	require.True(t, c.Input.Equal(decimal.NewFromInt(100).Mul(decimal.NewFromFloat(0.3))))
	// 1120 of 1500 output tokens belong to the image.
	require.True(t, c.ImageOutput.Equal(decimal.NewFromInt(1120).Mul(decimal.NewFromInt(30))))
	require.True(t, c.Output.Equal(decimal.NewFromInt(380).Mul(decimal.NewFromFloat(2.5))))
}

func TestCalculate_4KImageTokens(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "image-model", ProviderID: "google-ai-studio",
		PromptTokens: intPtr(100), CompletionTokens: intPtr(2000),
		OutputImageCount: 1, ImageSize: "4K",
	})
	require.NotNil(t, c)
	require.True(t, c.ImageOutput.Equal(decimal.NewFromInt(2000).Mul(decimal.NewFromInt(30))))
	require.True(t, c.Output.IsZero())
}

func TestCalculate_RequestAndWebSearch(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "per-request-model", ProviderID: "zai",
		PromptTokens: intPtr(0), CompletionTokens: intPtr(0), WebSearchCount: 2,
	})
	require.NotNil(t, c)
	require.True(t, c.Request.Equal(decimal.NewFromFloat(0.06)))
	require.True(t, c.WebSearch.Equal(decimal.NewFromFloat(0.02)))
	require.True(t, c.Total.Equal(decimal.NewFromFloat(0.08)))
}

func TestCalculate_DiscountScalesLinearly(t *testing.T) {
	reg := catalog.NewRegistry(
		[]catalog.Provider{{ID: "p", Name: "P", Format: catalog.FormatOpenAI}},
		[]catalog.Model{
			{ID: "m0", Family: "f", Providers: []catalog.Mapping{
				{ProviderID: "p", ModelName: "m0", InputPrice: 2, OutputPrice: 6},
			}},
			{ID: "m30", Family: "f", Providers: []catalog.Mapping{
				{ProviderID: "p", ModelName: "m30", InputPrice: 2, OutputPrice: 6, Discount: 0.3},
			}},
		},
	)
	full := Calculate(reg, Input{ModelID: "m0", ProviderID: "p", PromptTokens: intPtr(1000), CompletionTokens: intPtr(500)})
	cut := Calculate(reg, Input{ModelID: "m30", ProviderID: "p", PromptTokens: intPtr(1000), CompletionTokens: intPtr(500)})
	require.NotNil(t, full)
	require.NotNil(t, cut)
	require.True(t, cut.Total.Equal(full.Total.Mul(decimal.NewFromFloat(0.7))),
		"full %s cut %s", full.Total, cut.Total)
}

func TestCalculate_EstimatesWhenTokensMissing(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "cached-model", ProviderID: "zai",
		EstimationText: "The quick brown fox jumps over the lazy dog.",
	})
	require.NotNil(t, c)
	require.True(t, c.Estimated)
	require.Greater(t, c.PromptTokens, 0)
}

func TestCalculate_MappingNameLookup(t *testing.T) {
	reg := testRegistry()
	c := Calculate(reg, Input{
		ModelID: "tiered-model-001", ProviderID: "google-ai-studio",
		PromptTokens: intPtr(10), CompletionTokens: intPtr(10),
	})
	require.NotNil(t, c)
}
