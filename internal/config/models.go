package config

// Model roles looked up by the generation client.
const (
	RoleClassifier = "classifier"
	RoleHandler    = "handler"
)

// ModelsConfig maps a model role to its provider routes.
type ModelsConfig struct {
	Models map[string]ModelMapping `yaml:"models"`
}

type ModelMapping struct {
	Primary  ProviderRoute   `yaml:"primary"`
	Fallback []ProviderRoute `yaml:"fallback"`
}

type ProviderRoute struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}
