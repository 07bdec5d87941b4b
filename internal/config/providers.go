package config

import (
	"fmt"
	"sort"
	"time"
)

// Provider wire formats understood by the generation client.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one upstream model endpoint. An empty Type is
// treated as OpenAI-compatible.
type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// Validate checks that every route in models names a configured provider
// and that each provider has a usable type and base URL.
func (p *ProvidersConfig) Validate(models *ModelsConfig) error {
	names := make([]string, 0, len(p.Providers))
	for name := range p.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := p.Providers[name]
		switch pc.Type {
		case "", ProviderOpenAI, ProviderAnthropic:
		default:
			return fmt.Errorf("provider %q: unsupported type %q", name, pc.Type)
		}
		if pc.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required", name)
		}
	}

	if models == nil {
		return nil
	}
	roles := make([]string, 0, len(models.Models))
	for role := range models.Models {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		mapping := models.Models[role]
		for _, route := range append([]ProviderRoute{mapping.Primary}, mapping.Fallback...) {
			if route.Provider == "" {
				continue
			}
			if _, ok := p.Providers[route.Provider]; !ok {
				return fmt.Errorf("model role %q routes to unknown provider %q", role, route.Provider)
			}
		}
	}
	return nil
}
