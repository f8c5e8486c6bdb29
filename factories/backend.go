package factories

import (
	"errors"

	"travelvoice/backend"
	"travelvoice/core"
	openaibackend "travelvoice/services/openai/backend"
)

// BackendFactoryConfig selects the conversational backend.
// Set exactly one provider config; the rest should be left nil.
// Every provider other than http talks the OpenAI protocol through the same
// service with a different base URL. Audio transcription and speech
// synthesis only work where the provider offers them.
type BackendFactoryConfig struct {
	HTTPConfig       *backend.Config       `json:"http,omitempty" yaml:"http,omitempty"`
	OpenAIConfig     *openaibackend.Config `json:"openai,omitempty" yaml:"openai,omitempty"`
	GroqConfig       *openaibackend.Config `json:"groq,omitempty" yaml:"groq,omitempty"`
	TogetherConfig   *openaibackend.Config `json:"together,omitempty" yaml:"together,omitempty"`
	DeepSeekConfig   *openaibackend.Config `json:"deepseek,omitempty" yaml:"deepseek,omitempty"`
	OpenRouterConfig *openaibackend.Config `json:"openrouter,omitempty" yaml:"openrouter,omitempty"`
	MistralConfig    *openaibackend.Config `json:"mistral,omitempty" yaml:"mistral,omitempty"`
}

// Default base URLs for OpenAI-compatible providers.
const (
	groqBaseURL       = "https://api.groq.com/openai/v1"
	togetherBaseURL   = "https://api.together.xyz/v1"
	deepseekBaseURL   = "https://api.deepseek.com/v1"
	openrouterBaseURL = "https://openrouter.ai/api/v1"
	mistralBaseURL    = "https://api.mistral.ai/v1"
)

// DefaultBackendFactoryConfig talks to a local server over HTTP.
func DefaultBackendFactoryConfig() BackendFactoryConfig {
	cfg := backend.DefaultConfig()
	return BackendFactoryConfig{HTTPConfig: &cfg}
}

// BuildBackend constructs a Backend from the given factory config.
// Exactly one provider config must be non-nil.
func BuildBackend(config BackendFactoryConfig, logger *core.Logger) (backend.Backend, error) {
	set := 0
	for _, present := range []bool{
		config.HTTPConfig != nil, config.OpenAIConfig != nil, config.GroqConfig != nil,
		config.TogetherConfig != nil, config.DeepSeekConfig != nil, config.OpenRouterConfig != nil,
		config.MistralConfig != nil,
	} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("BackendFactoryConfig: more than one provider config specified")
	}

	if config.HTTPConfig != nil {
		return asBackend(backend.NewHTTPClient(*config.HTTPConfig, logger))
	}
	if config.OpenAIConfig != nil {
		return asBackend(openaibackend.New(*config.OpenAIConfig, logger))
	}
	if config.GroqConfig != nil {
		return asBackend(buildOpenAICompatible(*config.GroqConfig, groqBaseURL, "llama-3.3-70b-versatile", logger))
	}
	if config.TogetherConfig != nil {
		return asBackend(buildOpenAICompatible(*config.TogetherConfig, togetherBaseURL, "meta-llama/Llama-3.3-70B-Instruct-Turbo", logger))
	}
	if config.DeepSeekConfig != nil {
		return asBackend(buildOpenAICompatible(*config.DeepSeekConfig, deepseekBaseURL, "deepseek-chat", logger))
	}
	if config.OpenRouterConfig != nil {
		return asBackend(buildOpenAICompatible(*config.OpenRouterConfig, openrouterBaseURL, "openai/gpt-4o-mini", logger))
	}
	if config.MistralConfig != nil {
		return asBackend(buildOpenAICompatible(*config.MistralConfig, mistralBaseURL, "mistral-large-latest", logger))
	}
	return nil, errors.New("BackendFactoryConfig: no provider config specified")
}

// buildOpenAICompatible applies the provider's base URL and model unless the
// config sets them.
func buildOpenAICompatible(cfg openaibackend.Config, defaultBaseURL, defaultModel string, logger *core.Logger) (*openaibackend.Service, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return openaibackend.New(cfg, logger)
}

// asBackend keeps a failed constructor's typed nil out of the interface.
func asBackend[T backend.Backend](b T, err error) (backend.Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *BackendFactoryConfig) injectAPIKeys(keys APIKeys) {
	if c.HTTPConfig != nil && keys.Backend != "" {
		if c.HTTPConfig.Headers == nil {
			c.HTTPConfig.Headers = map[string]string{}
		}
		if _, ok := c.HTTPConfig.Headers["Authorization"]; !ok {
			c.HTTPConfig.Headers["Authorization"] = "Bearer " + keys.Backend
		}
	}
	for _, pair := range []struct {
		cfg *openaibackend.Config
		key string
	}{
		{c.OpenAIConfig, keys.OpenAI},
		{c.GroqConfig, keys.Groq},
		{c.TogetherConfig, keys.Together},
		{c.DeepSeekConfig, keys.DeepSeek},
		{c.OpenRouterConfig, keys.OpenRouter},
		{c.MistralConfig, keys.Mistral},
	} {
		if pair.cfg != nil && pair.cfg.APIKey == "" {
			pair.cfg.APIKey = pair.key
		}
	}
}
