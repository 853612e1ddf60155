// Package registry maps public model aliases onto vendor endpoints.
package registry

import (
	"fmt"
	"strings"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
)

type Capability uint8

const (
	CapabilityImages Capability = 1 << iota
	CapabilityFiles
)

func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var names []string
	if c.Has(CapabilityImages) {
		names = append(names, "images")
	}
	if c.Has(CapabilityFiles) {
		names = append(names, "files")
	}
	return strings.Join(names, ",")
}

func ParseCapability(name string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "images", "image":
		return CapabilityImages, nil
	case "files", "file":
		return CapabilityFiles, nil
	default:
		return 0, fmt.Errorf("unknown capability %q", name)
	}
}

// Model is an immutable alias entry.
type Model struct {
	Alias          string
	VendorEndpoint string
	VendorModelID  string
	Capabilities   Capability
}

func (m Model) Supports(c Capability) bool {
	return m.Capabilities.Has(c)
}

const DefaultAlias = "postech-gpt"

// DefaultModels is the built-in alias table.
func DefaultModels() []Model {
	return []Model{
		{Alias: "postech-gpt", VendorEndpoint: "a1/gpt", VendorModelID: "gpt", Capabilities: CapabilityImages | CapabilityFiles},
		{Alias: "postech-gemini", VendorEndpoint: "a2/gemini", VendorModelID: "gemini", Capabilities: CapabilityImages | CapabilityFiles},
		{Alias: "postech-claude", VendorEndpoint: "a3/claude", VendorModelID: "claude", Capabilities: CapabilityImages | CapabilityFiles},
	}
}

type Registry struct {
	models       []Model
	byAlias      map[string]Model
	defaultAlias string
}

// New builds a registry from models. defaultAlias may be empty, in which case
// requests without a model fail with ErrUnknownModel.
func New(models []Model, defaultAlias string) (*Registry, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("registry: no models configured")
	}

	r := &Registry{
		models:  make([]Model, 0, len(models)),
		byAlias: make(map[string]Model, len(models)),
	}

	for _, m := range models {
		if m.Alias == "" || m.VendorEndpoint == "" {
			return nil, fmt.Errorf("registry: model %q needs an alias and an endpoint", m.Alias)
		}
		if _, dup := r.byAlias[m.Alias]; dup {
			return nil, fmt.Errorf("registry: duplicate alias %q", m.Alias)
		}
		m.VendorEndpoint = strings.Trim(m.VendorEndpoint, "/")
		r.models = append(r.models, m)
		r.byAlias[m.Alias] = m
	}

	if defaultAlias != "" {
		if _, ok := r.byAlias[defaultAlias]; !ok {
			return nil, fmt.Errorf("registry: default alias %q is not in the table", defaultAlias)
		}
		r.defaultAlias = defaultAlias
	}

	return r, nil
}

// Default returns the built-in table with postech-gpt as default.
func Default() *Registry {
	r, err := New(DefaultModels(), DefaultAlias)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Resolve(alias string) (Model, error) {
	if alias == "" {
		alias = r.defaultAlias
	}
	m, ok := r.byAlias[alias]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", domain.ErrUnknownModel, alias)
	}
	return m, nil
}

// List returns the models in table order.
func (r *Registry) List() []Model {
	out := make([]Model, len(r.models))
	copy(out, r.models)
	return out
}

func (r *Registry) DefaultAlias() string {
	return r.defaultAlias
}
