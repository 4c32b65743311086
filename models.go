package analyst

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog/models.yaml
var defaultModelsYAML []byte

// Model metadata is informational: it bounds max_tokens before a request is
// sent and prices the usage of a finished analysis. Models absent from the
// registry are still sent; the endpoint remains the source of truth.

// modelsFile is the YAML layout of a model registry.
type modelsFile struct {
	Version     string                     `yaml:"version"`
	LastUpdated string                     `yaml:"last_updated"`
	Provider    string                     `yaml:"provider"`
	Models      map[string]ModelCapability `yaml:"models"`
}

// ModelCapability describes the limits and pricing of one model.
type ModelCapability struct {
	ContextWindow   int         `yaml:"context_window"`
	MaxOutputTokens int         `yaml:"max_output_tokens"`
	Pricing         PricingInfo `yaml:"pricing"`
}

// PricingInfo contains model pricing in USD per million tokens.
type PricingInfo struct {
	InputPer1M      float64 `yaml:"input_per_1m"`
	OutputPer1M     float64 `yaml:"output_per_1m"`
	CacheWritePer1M float64 `yaml:"cache_write_per_1m"`
	CacheReadPer1M  float64 `yaml:"cache_read_per_1m"`
}

// Cost prices a usage record.
func (p PricingInfo) Cost(u Usage) float64 {
	const perToken = 1.0 / 1_000_000
	return perToken * (float64(u.InputTokens)*p.InputPer1M +
		float64(u.OutputTokens)*p.OutputPer1M +
		float64(u.CacheCreationInputTokens)*p.CacheWritePer1M +
		float64(u.CacheReadInputTokens)*p.CacheReadPer1M)
}

// ModelRegistry maps model identifiers to their capabilities.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]ModelCapability
}

var defaultModels = sync.OnceValues(func() (*ModelRegistry, error) {
	return ParseModels(defaultModelsYAML)
})

// DefaultModels returns the embedded registry of Anthropic models.
func DefaultModels() (*ModelRegistry, error) {
	return defaultModels()
}

// LoadModelsFromFile reads a registry from a YAML file shaped like the
// embedded one.
func LoadModelsFromFile(path string) (*ModelRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}
	return ParseModels(data)
}

// ParseModels builds a registry from YAML.
func ParseModels(data []byte) (*ModelRegistry, error) {
	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal models: %w", err)
	}
	r := &ModelRegistry{models: make(map[string]ModelCapability, len(file.Models))}
	for name, model := range file.Models {
		if model.MaxOutputTokens < 1 {
			return nil, fmt.Errorf("model %s: max_output_tokens must be positive", name)
		}
		r.models[name] = model
	}
	return r, nil
}

// Lookup returns the capability of a model.
func (r *ModelRegistry) Lookup(model string) (ModelCapability, bool) {
	if r == nil {
		return ModelCapability{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	return m, ok
}

// Register adds or replaces a model.
func (r *ModelRegistry) Register(model string, capability ModelCapability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = capability
}

// checkParams rejects a max_tokens above the model's output ceiling.
// Unknown models pass.
func (r *ModelRegistry) checkParams(p RequestParams) error {
	m, ok := r.Lookup(p.Model)
	if !ok {
		return nil
	}
	if p.MaxTokens > m.MaxOutputTokens {
		return &ValidationError{
			Field:  "max_tokens",
			Value:  p.MaxTokens,
			Reason: fmt.Sprintf("exceeds %s output limit of %d", p.Model, m.MaxOutputTokens),
			Err:    ErrInvalidRequest,
		}
	}
	return nil
}

// estimateCost prices usage for a model, or returns 0 for unknown models.
func (r *ModelRegistry) estimateCost(model string, u Usage) float64 {
	m, ok := r.Lookup(model)
	if !ok {
		return 0
	}
	return m.Pricing.Cost(u)
}
