package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aileks/realm-sync/internal/apperr"
)

// Completer sends one system+user prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error)
	Model() string
}

// ClaudeCompleter implements Completer with the Anthropic Messages API.
type ClaudeCompleter struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeCompleter creates a Claude-backed completer.
func NewClaudeCompleter(apiKey, model string, logger *slog.Logger) *ClaudeCompleter {
	if logger == nil {
		logger = slog.Default()
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeCompleter{client: &c, model: model, logger: logger}
}

// Model returns the configured model id.
func (c *ClaudeCompleter) Model() string { return c.model }

// Complete returns the first text block of the response.
func (c *ClaudeCompleter) Complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	})
	if err != nil {
		return "", classifyAPIError(err)
	}

	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			return resp.Content[i].Text, nil
		}
	}
	return "", apperr.New(apperr.CodeAPI, "empty response from model")
}

func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return apperr.Wrap(apperr.CodeRateLimited, err, "model rate limited")
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.Wrap(apperr.CodeConfiguration, err, "model credentials rejected")
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("calling Claude API: %w", err)
	}
	return apperr.Wrap(apperr.CodeAPI, err, "model request failed")
}
