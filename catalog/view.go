package catalog

import (
	"time"
)

// ModelView is the /v1/models representation of a catalog model.
type ModelView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Created       int64          `json:"created"`
	Architecture  Architecture   `json:"architecture"`
	TopProvider   string         `json:"top_provider"`
	Providers     []ProviderView `json:"providers"`
	Pricing       PricingView    `json:"pricing"`
	Family        string         `json:"family"`
	JSONOutput    bool           `json:"json_output"`
	Structured    bool           `json:"structured_outputs"`
	Stability     string         `json:"stability,omitempty"`
	DeprecatedAt  *time.Time     `json:"deprecated_at,omitempty"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
}

// Architecture lists a model's input and output modalities.
type Architecture struct {
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
}

// ProviderView is the per-provider slice of a model view.
type ProviderView struct {
	ProviderID    string      `json:"provider_id"`
	ModelName     string      `json:"model_name"`
	Pricing       PricingView `json:"pricing"`
	ContextSize   int         `json:"context_size,omitempty"`
	MaxOutput     int         `json:"max_output,omitempty"`
	Streaming     bool        `json:"streaming"`
	Vision        bool        `json:"vision,omitempty"`
	Reasoning     bool        `json:"reasoning,omitempty"`
	Tools         bool        `json:"tools,omitempty"`
	Stability     string      `json:"stability,omitempty"`
	DeprecatedAt  *time.Time  `json:"deprecated_at,omitempty"`
	DeactivatedAt *time.Time  `json:"deactivated_at,omitempty"`
}

// PricingView exposes prompt/completion prices as strings, OpenRouter style.
type PricingView struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// ListOptions controls model-view filtering.
type ListOptions struct {
	IncludeDeactivated bool
	ExcludeDeprecated  bool
}

// ListModels builds the /v1/models payload. Exclusion semantics operate at
// the model level: a model drops out only when every one of its providers is
// deprecated (or deactivated, unless IncludeDeactivated).
func (r *Registry) ListModels(now time.Time, opts ListOptions) []ModelView {
	views := make([]ModelView, 0, len(r.models))
	for _, m := range r.models {
		activeCount := 0
		nonDeprecatedCount := 0
		for i := range m.Providers {
			mp := &m.Providers[i]
			if mp.Available(now) {
				activeCount++
			}
			if !mp.Deprecated(now) {
				nonDeprecatedCount++
			}
		}
		if !opts.IncludeDeactivated && activeCount == 0 {
			continue
		}
		if opts.ExcludeDeprecated && nonDeprecatedCount == 0 {
			continue
		}

		view := ModelView{
			ID:      m.ID,
			Name:    m.Name,
			Created: 0,
			Architecture: Architecture{
				InputModalities:  inputModalities(m),
				OutputModalities: outputModalities(m),
			},
			Family:     m.Family,
			Stability:  m.Stability,
			JSONOutput: anyMapping(m, func(mp *Mapping) bool { return mp.JSONOutput }),
			Structured: anyMapping(m, func(mp *Mapping) bool { return mp.JSONOutput }),
		}
		if view.Name == "" {
			view.Name = m.ID
		}

		var cheapest *Mapping
		for i := range m.Providers {
			mp := &m.Providers[i]
			if !opts.IncludeDeactivated && !mp.Available(now) {
				continue
			}
			if opts.ExcludeDeprecated && mp.Deprecated(now) {
				continue
			}
			view.Providers = append(view.Providers, ProviderView{
				ProviderID:    mp.ProviderID,
				ModelName:     mp.ModelName,
				Pricing:       PricingView{Prompt: mp.InputPrice, Completion: mp.OutputPrice},
				ContextSize:   mp.ContextSize,
				MaxOutput:     mp.MaxOutput,
				Streaming:     mp.Streaming,
				Vision:        mp.Vision,
				Reasoning:     mp.Reasoning,
				Tools:         mp.Tools,
				Stability:     mp.Stability,
				DeprecatedAt:  mp.DeprecatedAt,
				DeactivatedAt: mp.DeactivatedAt,
			})
			if cheapest == nil || mp.InputPrice+mp.OutputPrice < cheapest.InputPrice+cheapest.OutputPrice {
				cheapest = mp
			}
		}
		if cheapest != nil {
			view.TopProvider = cheapest.ProviderID
			view.Pricing = PricingView{Prompt: cheapest.InputPrice, Completion: cheapest.OutputPrice}
		}
		views = append(views, view)
	}
	return views
}

func anyMapping(m *Model, pred func(*Mapping) bool) bool {
	for i := range m.Providers {
		if pred(&m.Providers[i]) {
			return true
		}
	}
	return false
}

func inputModalities(m *Model) []string {
	mods := []string{"text"}
	if anyMapping(m, func(mp *Mapping) bool { return mp.Vision }) {
		mods = append(mods, "image")
	}
	return mods
}

func outputModalities(m *Model) []string {
	if len(m.Output) > 0 {
		return m.Output
	}
	return []string{"text"}
}
