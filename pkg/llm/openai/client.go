// Package openai provides an OpenAI-backed LLM provider.
//
// Any OpenAI-compatible chat completions endpoint works through the BaseURL
// setting.
package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/llm"
)

// Client is an OpenAI chat client implementing llm.Provider.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI LLM client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// Model is the chat model name. Defaults to gpt-4o-mini.
	Model string

	// BaseURL overrides the API base URL for OpenAI-compatible endpoints.
	BaseURL string
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai llm: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate generates text from a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, opts...)
}

// GenerateWithMessages generates text from a conversation history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generation failed: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close closes the client. The underlying HTTP client needs no teardown.
func (c *Client) Close() error {
	return nil
}
