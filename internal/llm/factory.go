package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimvoice/internal/model"
)

// NewClient creates the understanding client named by config.Provider.
// An empty provider disables understanding and returns a nil client.
func NewClient(config Config) (Client, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIClient(config)

	case "anthropic", "claude":
		return NewAnthropicClient(config)

	case "ollama":
		return NewOllamaClient(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	cfg := DefaultConfig()
	cfg.Provider = modelConfig.Provider
	cfg.Model = modelConfig.Model
	cfg.APIKey = modelConfig.APIKey
	cfg.BaseURL = modelConfig.BaseURL
	cfg.HTTPProxy = modelConfig.HTTPProxy
	cfg.HTTPSProxy = modelConfig.HTTPSProxy
	if modelConfig.Timeout > 0 {
		cfg.Timeout = modelConfig.Timeout
	}
	if modelConfig.MaxTokens > 0 {
		cfg.MaxTokens = modelConfig.MaxTokens
	}
	return cfg
}

// endpointer is implemented by clients that know their remote URL
type endpointer interface {
	Endpoint() string
}

// EndpointOf returns the client's remote URL, or its name when it has none
func EndpointOf(c Client) string {
	if e, ok := c.(endpointer); ok {
		return e.Endpoint()
	}
	return c.Name()
}
