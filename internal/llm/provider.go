package llm

import (
	"context"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
)

// DefaultResponse is spoken when the service returns a blank response text
const DefaultResponse = "I'm sorry, could you repeat that?"

// Client is the understanding service: one round trip per caller turn that
// scores sentiment, extracts claim fields, suggests a state and writes the reply.
type Client interface {
	// Name returns the provider name
	Name() string

	// Process sends the turn context and returns the parsed result
	Process(ctx context.Context, req Request) (*Result, error)

	// IsAvailable checks if the provider is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Request is the per-turn context sent to the service
type Request struct {
	// State is the current dialogue state name
	State string

	// Claim is the claim snapshot; all seven fields are sent, nulls included
	Claim model.ClaimRecord

	// History holds at most the six most recent dialogue lines
	History []string
}

// Result is the parsed service output
type Result struct {
	Response          string
	EmergencyDetected bool
	EmergencyReason   string
	FrustrationScore  float64
	ClaimData         model.ClaimRecord
	ConversationState string

	// Model and TokensUsed describe the call, not the dialogue
	Model      string
	TokensUsed int
}

// Config holds understanding provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout per call, in seconds
	Timeout int

	// MaxTokens for the JSON reply
	MaxTokens int

	// Temperature for response generation
	Temperature float32

	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "",
		Timeout:     15,
		MaxTokens:   600,
		Temperature: 0.7,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return 600
	}
	return c.MaxTokens
}
