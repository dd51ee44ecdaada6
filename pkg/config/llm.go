package config

// LLMProviderConfig defines LLM provider configuration, consumed by
// pkg/classifier's LLM-backed Classifier/Drafter implementations.
type LLMProviderConfig struct {
	// Provider type (required)
	Type LLMProviderType `yaml:"type" validate:"required"`

	// Model name (required)
	Model string `yaml:"model" validate:"required"`

	// Environment variable name for API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// For VertexAI/GCP
	ProjectEnv  string `yaml:"project_env,omitempty"`
	LocationEnv string `yaml:"location_env,omitempty"`

	// Optional custom endpoint/base URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Maximum tokens for tool results (required, min 1000)
	MaxToolResultTokens int `yaml:"max_tool_result_tokens" validate:"required,min=1000"`
}
