package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/claimvoice/internal/util"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls the Chat Completions API in JSON mode
type OpenAIClient struct {
	client *openai.Client
	config Config
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = util.NewHTTPClient(config.timeout(), config.HTTPProxy, config.HTTPSProxy)

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return "openai"
}

// IsAvailable lists models as a lightweight credentials check
func (c *OpenAIClient) IsAvailable(ctx context.Context) bool {
	if _, err := c.client.ListModels(ctx); err != nil {
		slog.Warn("OpenAI availability check failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Process sends one turn to the model and parses its JSON reply
func (c *OpenAIClient) Process(ctx context.Context, req Request) (*Result, error) {
	userContext, err := BuildContext(req)
	if err != nil {
		return nil, err
	}

	model := c.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	temperature := c.config.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userContext},
		},
		MaxTokens:   c.config.maxTokens(),
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in OpenAI response", ErrMalformedResult)
	}

	result, err := ParseResult([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	result.Model = resp.Model
	result.TokensUsed = resp.Usage.TotalTokens
	return result, nil
}

// Endpoint is the URL the client talks to, used as the rate-limit key
func (c *OpenAIClient) Endpoint() string {
	if c.config.BaseURL != "" {
		return c.config.BaseURL
	}
	return openAIDefaultBaseURL
}
