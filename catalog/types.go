package catalog

import "time"

// Wire format families. Every provider speaks exactly one of these; the relay
// adaptor registry dispatches on it.
const (
	FormatOpenAI          = "openai"           // chat-completions compatible
	FormatOpenAIResponses = "openai-responses" // OpenAI Responses API
	FormatAnthropic       = "anthropic"        // Anthropic Messages
	FormatGoogle          = "google"           // AI Studio / Vertex generateContent
	FormatBedrock         = "bedrock"          // AWS Bedrock Converse
	FormatDashScopeImage  = "dashscope-image"  // Alibaba image generation
	FormatCogViewImage    = "cogview-image"    // ZAI image generation
)

// Stability levels for models and mappings. Unstable and experimental
// mappings never receive routed traffic.
const (
	StabilityStable       = "stable"
	StabilityBeta         = "beta"
	StabilityUnstable     = "unstable"
	StabilityExperimental = "experimental"
)

// Sentinel provider ids recognized by the resolver.
const (
	GatewayProviderID = "llmgateway"
	CustomProviderID  = "custom"
)

// Provider describes an upstream vendor endpoint.
type Provider struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	BaseURL      string  `json:"baseUrl"`
	Format       string  `json:"format"`
	Priority     float64 `json:"priority,omitempty"` // (0,1], defaults to 1
	Streaming    bool    `json:"streaming"`
	Cancellation bool    `json:"cancellation"`
}

// PricingTier is a volume pricing step. The first tier whose UpToTokens is
// >= the request's prompt tokens applies; requests above every tier fall back
// to the mapping's base prices.
type PricingTier struct {
	Name             string   `json:"name,omitempty"`
	UpToTokens       int      `json:"upToTokens"`
	InputPrice       float64  `json:"inputPrice"`
	OutputPrice      float64  `json:"outputPrice"`
	CachedInputPrice *float64 `json:"cachedInputPrice,omitempty"`
}

// Mapping binds a model to a provider under the provider's own model name,
// with that provider's pricing and capabilities.
type Mapping struct {
	ProviderID       string        `json:"providerId"`
	ModelName        string        `json:"modelName"`
	InputPrice       float64       `json:"inputPrice"`
	OutputPrice      float64       `json:"outputPrice"`
	CachedInputPrice *float64      `json:"cachedInputPrice,omitempty"`
	ImageInputPrice  *float64      `json:"imageInputPrice,omitempty"`
	ImageOutputPrice *float64      `json:"imageOutputPrice,omitempty"`
	RequestPrice     *float64      `json:"requestPrice,omitempty"`
	WebSearchPrice   *float64      `json:"webSearchPrice,omitempty"`
	PricingTiers     []PricingTier `json:"pricingTiers,omitempty"`
	ContextSize      int           `json:"contextSize,omitempty"`
	MaxOutput        int           `json:"maxOutput,omitempty"`
	Streaming        bool          `json:"streaming"`
	Vision           bool          `json:"vision,omitempty"`
	Reasoning        bool          `json:"reasoning,omitempty"`
	Tools            bool          `json:"tools,omitempty"`
	JSONOutput       bool          `json:"jsonOutput"`
	WebSearch        bool          `json:"webSearch"`
	Discount         float64       `json:"discount,omitempty"` // [0,1)
	Stability        string        `json:"stability,omitempty"`
	DeprecatedAt     *time.Time    `json:"deprecatedAt,omitempty"`
	DeactivatedAt    *time.Time    `json:"deactivatedAt,omitempty"`
}

// Available reports whether the mapping may still receive traffic at now.
func (m *Mapping) Available(now time.Time) bool {
	return m.DeactivatedAt == nil || now.Before(*m.DeactivatedAt)
}

// Deprecated reports whether the mapping is flagged deprecated at now.
func (m *Mapping) Deprecated(now time.Time) bool {
	return m.DeprecatedAt != nil && !now.Before(*m.DeprecatedAt)
}

// Routable reports whether the mapping's stability admits routed traffic.
func (m *Mapping) Routable() bool {
	return m.Stability != StabilityUnstable && m.Stability != StabilityExperimental
}

// Model is a logical model families across providers map onto.
type Model struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Family    string    `json:"family"`
	Free      bool      `json:"free,omitempty"`
	Output    []string  `json:"output,omitempty"` // "text", "image"
	Stability string    `json:"stability,omitempty"`
	Providers []Mapping `json:"providers"`
}

// MappingFor returns the model's mapping for the given provider, or nil.
func (m *Model) MappingFor(providerID string) *Mapping {
	for i := range m.Providers {
		if m.Providers[i].ProviderID == providerID {
			return &m.Providers[i]
		}
	}
	return nil
}
