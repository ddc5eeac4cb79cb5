// Package genai wraps the OpenAI chat completions API for LeadFlow.
//
// It exposes a small ClientInterface so flow components can be tested with a
// fake client that returns canned completions.
package genai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for chat completion requests.
const (
	// DefaultModel is the chat model used for classification and validation.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTemperature keeps structured outputs stable across calls.
	DefaultTemperature = 0.3
)

// ClientInterface is the surface flow components depend on.
type ClientInterface interface {
	// GeneratePrompt runs a single system+user exchange.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithMessages runs a completion over a full message history.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewClient initializes a GenAI client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel, Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	slog.Debug("GenAI NewClient configured", "model", cfg.Model, "temperature", cfg.Temperature)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{client: cli, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// GeneratePrompt generates a response for a single system+user exchange.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	return c.GenerateWithMessages(ctx, messages)
}

// GenerateWithMessages generates a response over a full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	slog.Debug("GenAI GenerateWithMessages invoked", "message_count", len(messages))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		slog.Error("GenAI completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("GenAI completion received", "response_length", len(content))
	return content, nil
}
