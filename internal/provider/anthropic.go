package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicCompleter implements the Completer and StreamCompleter interfaces
// using the Anthropic API.
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicCompleter creates a new AnthropicCompleter.
// If model is empty, it defaults to claude-sonnet-4-20250514.
func NewAnthropicCompleter(apiKey, model string, opts ...option.RequestOption) *AnthropicCompleter {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicCompleter{
		client: &client,
		model:  model,
	}
}

// Complete sends a prompt to Anthropic and returns the text completion.
func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicError(ctx, "anthropic completion", err)
	}

	// Extract text from the response
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("%w: no text content in response", ErrInvalidResponse)
}

// CompleteStream streams a message, calling onDelta for each text delta.
func (a *AnthropicCompleter) CompleteStream(ctx context.Context, system, prompt string, onDelta func(string) error) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := onDelta(delta.Text); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classifyAnthropicError(ctx, "anthropic stream", err)
	}
	return nil
}

func classifyAnthropicError(ctx context.Context, op string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode == 529 {
			return fmt.Errorf("%w: %s", ErrRateLimit, err)
		}
		if apiErr.StatusCode == 408 || apiErr.StatusCode == 504 {
			return fmt.Errorf("%w: %s", ErrTimeout, err)
		}
	}
	return contextError(ctx, op, err)
}

var _ StreamCompleter = (*AnthropicCompleter)(nil)
