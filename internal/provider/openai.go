package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = string(openai.SmallEmbedding3)
)

// newOpenAIClient builds a client; baseURL lets OpenAI-compatible endpoints
// (Azure gateways, Gemini's OpenAI surface, local proxies) be used.
func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAICompleter implements the Completer and StreamCompleter interfaces
// using the OpenAI chat completions API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a new OpenAICompleter.
// If model is empty, it defaults to gpt-4o-mini.
func NewOpenAICompleter(apiKey, model, baseURL string) *OpenAICompleter {
	return newOpenAICompleterWithClient(newOpenAIClient(apiKey, baseURL), model)
}

func newOpenAICompleterWithClient(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAICompleter{
		client: client,
		model:  model,
	}
}

// Complete sends a prompt to OpenAI and returns the text completion.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", classifyOpenAIError(ctx, "openai completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams a chat completion, calling onDelta for each content
// fragment.
func (o *OpenAICompleter) CompleteStream(ctx context.Context, system, prompt string, onDelta func(string) error) error {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: 2048,
		Stream:    true,
	})
	if err != nil {
		return classifyOpenAIError(ctx, "openai stream", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classifyOpenAIError(ctx, "openai stream", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onDelta(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}

// OpenAIEmbedder implements the Embedder interface using the OpenAI
// embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates a new OpenAIEmbedder.
// If model is empty, it defaults to text-embedding-3-small (1536 dims).
func NewOpenAIEmbedder(apiKey, model, baseURL string) *OpenAIEmbedder {
	return newOpenAIEmbedderWithClient(newOpenAIClient(apiKey, baseURL), model)
}

func newOpenAIEmbedderWithClient(client *openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIEmbeddingModel
	}
	return &OpenAIEmbedder{client: client, model: model}
}

// Embed returns a vector embedding for the given text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, classifyOpenAIError(ctx, "openai embedding", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding data in response", ErrInvalidResponse)
	}
	if len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrInvalidResponse)
	}

	return resp.Data[0].Embedding, nil
}

// classifyOpenAIError maps API errors onto the provider sentinels.
func classifyOpenAIError(ctx context.Context, op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %s", ErrRateLimit, err)
		}
		if apiErr.HTTPStatusCode == 408 || apiErr.HTTPStatusCode == 504 {
			return fmt.Errorf("%w: %s", ErrTimeout, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %s", ErrRateLimit, err)
	}
	return contextError(ctx, op, err)
}

// contextError reports a deadline as ErrTimeout and keeps caller
// cancellation distinguishable from it.
func contextError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return fmt.Errorf("%w: %s", ErrTimeout, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var (
	_ StreamCompleter = (*OpenAICompleter)(nil)
	_ Embedder        = (*OpenAIEmbedder)(nil)
)
