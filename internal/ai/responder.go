// Package ai wraps the AI text-generation collaborator behind a narrow
// interface: prompt in, reply text out, or an error. The rest of the system
// treats it as a black box; failures (including timeouts) are recoverable
// from the queue's point of view and flow into its retry policy.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deepanshu1531/gemini-backend-clone/internal/config"
)

// ErrEmptyReply is returned when the provider answers with no usable text.
var ErrEmptyReply = errors.New("ai: empty reply")

// Responder generates a reply for a user prompt.
type Responder interface {
	GenerateReply(ctx context.Context, prompt string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, prompt string) (string, error)

// GenerateReply implements Responder.
func (f ResponderFunc) GenerateReply(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Client is the production Responder backed by an OpenAI-compatible chat
// completion endpoint. Each call is bounded by the configured timeout;
// exceeding it surfaces as a context error, which the queue treats as a
// recoverable failure.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient constructs a Client from configuration. BaseURL overrides the
// provider default so Gemini-style OpenAI-compatible gateways work too.
func NewClient(cfg config.AIConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// GenerateReply sends the prompt as a single-turn chat completion and
// returns the first choice's text.
func (c *Client) GenerateReply(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
