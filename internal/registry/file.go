package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Default string        `yaml:"default"`
	Models  []modelConfig `yaml:"models"`
}

type modelConfig struct {
	Alias        string   `yaml:"alias"`
	Endpoint     string   `yaml:"endpoint"`
	Model        string   `yaml:"model"`
	Capabilities []string `yaml:"capabilities"`
}

// LoadFile reads an alias table from YAML:
//
//	default: postech-gpt
//	models:
//	  - alias: postech-gpt
//	    endpoint: a1/gpt
//	    model: gpt
//	    capabilities: [images, files]
//
// fallbackDefault is used when the file has no default key.
func LoadFile(path, fallbackDefault string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	return Parse(data, fallbackDefault)
}

func Parse(data []byte, fallbackDefault string) (*Registry, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse models file: %w", err)
	}

	models := make([]Model, 0, len(cfg.Models))
	for _, mc := range cfg.Models {
		var caps Capability
		for _, name := range mc.Capabilities {
			c, err := ParseCapability(name)
			if err != nil {
				return nil, fmt.Errorf("model %q: %w", mc.Alias, err)
			}
			caps |= c
		}
		models = append(models, Model{
			Alias:          mc.Alias,
			VendorEndpoint: mc.Endpoint,
			VendorModelID:  mc.Model,
			Capabilities:   caps,
		})
	}

	def := cfg.Default
	if def == "" {
		def = fallbackDefault
	}
	return New(models, def)
}
