// Package genai provides an OpenAI-backed ticket category classifier.
//
// The classifier is advisory: the intake flow falls back to the catch-all
// category whenever it errors, returns an unknown label, or is not configured
// at all.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Categories the classifier may return. Anything else is treated as a miss.
var allowedCategories = map[string]bool{
	"hardware":   true,
	"software":   true,
	"rede":       true,
	"acesso":     true,
	"email":      true,
	"impressora": true,
	"outros":     true,
}

const systemPrompt = "Você é um classificador de chamados de suporte de TI. " +
	"Dado o problema relatado, responda com exatamente uma palavra dentre: " +
	"hardware, software, rede, acesso, email, impressora, outros. " +
	"Responda apenas com a categoria, sem pontuação."

// Opts holds configuration for the classifier client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures the classifier client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the default chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client wraps the OpenAI chat completion API for category suggestion.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient initializes a classifier. The API key falls back to the
// OPENAI_API_KEY environment variable when no option provides one.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not provided")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// SuggestCategory classifies the problem text into one of the allowed
// categories. Returns an error for transport failures and for labels outside
// the allow-list; callers should fall back to the catch-all category.
func (c *Client) SuggestCategory(ctx context.Context, problem string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(problem),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	category := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	if !allowedCategories[category] {
		return "", fmt.Errorf("model returned unknown category %q", category)
	}
	slog.Debug("Classifier suggested category", "category", category)
	return category, nil
}
