package catalog

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/Laisky/errors/v2"
)

// Registry is the immutable catalog of providers, models, and mappings. It is
// loaded once at startup and never mutated afterwards, so lookups need no
// locking beyond the initialization guard.
type Registry struct {
	providers map[string]*Provider
	models    []*Model
	byModelID map[string]*Model
	// byMappingName indexes provider-specific model names; a name may be
	// served by multiple providers.
	byMappingName map[string][]*Model
}

type registryFile struct {
	Providers []Provider `json:"providers"`
	Models    []Model    `json:"models"`
}

// NewRegistry builds a registry from provider and model definitions.
func NewRegistry(providers []Provider, models []Model) *Registry {
	r := &Registry{
		providers:     make(map[string]*Provider, len(providers)),
		byModelID:     make(map[string]*Model, len(models)),
		byMappingName: make(map[string][]*Model),
	}
	for i := range providers {
		p := providers[i]
		if p.Priority == 0 {
			p.Priority = 1
		}
		r.providers[p.ID] = &p
	}
	for i := range models {
		m := models[i]
		r.models = append(r.models, &m)
		r.byModelID[m.ID] = &m
		for j := range m.Providers {
			name := m.Providers[j].ModelName
			r.byMappingName[name] = append(r.byMappingName[name], &m)
		}
	}
	return r
}

// LoadFile reads a catalog JSON document from disk.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	var doc registryFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal catalog file")
	}
	return NewRegistry(doc.Providers, doc.Models), nil
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the embedded catalog, parsing it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		var doc registryFile
		if err := json.Unmarshal(embeddedCatalog, &doc); err != nil {
			panic(errors.Wrap(err, "embedded catalog is malformed"))
		}
		defaultRegistry = NewRegistry(doc.Providers, doc.Models)
	})
	return defaultRegistry
}

// Provider returns the provider definition for id, or nil when unknown.
func (r *Registry) Provider(id string) *Provider {
	return r.providers[id]
}

// HasProvider reports whether id names a known provider.
func (r *Registry) HasProvider(id string) bool {
	_, ok := r.providers[id]
	return ok
}

// Model returns the model with the given canonical id, or nil.
func (r *Registry) Model(id string) *Model {
	return r.byModelID[id]
}

// Models returns all models in catalog order.
func (r *Registry) Models() []*Model {
	return r.models
}

// ModelsByMappingName returns every model that some provider serves under the
// given provider-specific name.
func (r *Registry) ModelsByMappingName(name string) []*Model {
	return r.byMappingName[name]
}

// ModelByMapping finds the model that providerID itself serves under
// mappingName. Another provider's alias for the same model does not match.
func (r *Registry) ModelByMapping(providerID, mappingName string) *Model {
	for _, m := range r.byMappingName[mappingName] {
		for i := range m.Providers {
			mp := &m.Providers[i]
			if mp.ProviderID == providerID && mp.ModelName == mappingName {
				return m
			}
		}
	}
	return nil
}

// FindModel resolves an identifier that may be either a canonical model id or
// any provider-specific mapping name. Used by the cost engine, which receives
// whichever name the dispatcher logged.
func (r *Registry) FindModel(idOrMappingName string) *Model {
	if m := r.byModelID[idOrMappingName]; m != nil {
		return m
	}
	if ms := r.byMappingName[idOrMappingName]; len(ms) > 0 {
		return ms[0]
	}
	return nil
}
