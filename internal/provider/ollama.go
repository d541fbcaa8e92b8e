package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaModel          = "llama3.1:8b"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
	defaultOllamaURL            = "http://localhost:11434"
)

// OllamaEmbedder implements the Embedder interface using Ollama's local API.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaEmbedder creates a new Ollama embedding provider.
// Supported models: "nomic-embed-text" (768 dims), "mxbai-embed-large" (1024 dims).
func NewOllamaEmbedder(url, model string) *OllamaEmbedder {
	if url == "" {
		url = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaEmbeddingModel
	}
	return &OllamaEmbedder{
		url:   strings.TrimRight(url, "/"),
		model: model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns a vector embedding for the given text using Ollama's local API.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := ollamaPost(ctx, e.client, e.url+"/api/embeddings", ollamaEmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	var result ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %v", ErrInvalidResponse, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned from ollama", ErrInvalidResponse)
	}

	embedding := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// OllamaCompleter implements the Completer and StreamCompleter interfaces
// using a local Ollama server.
type OllamaCompleter struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaCompleter creates a new OllamaCompleter.
// If url is empty, it defaults to http://localhost:11434.
// If model is empty, it defaults to llama3.1:8b.
func NewOllamaCompleter(url, model string) *OllamaCompleter {
	if url == "" {
		url = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaCompleter{
		url:   strings.TrimRight(url, "/"),
		model: model,
		// No client timeout: streamed answers are bounded by the caller's context.
		client: &http.Client{},
	}
}

type ollamaCompletionRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaCompletionResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Complete sends a prompt to the Ollama server and returns the text completion.
func (o *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := ollamaPost(ctx, o.client, o.url+"/api/generate", ollamaCompletionRequest{
		Model:  o.model,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}
	defer drain(resp)

	var ollamaResp ollamaCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if ollamaResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}
	return ollamaResp.Response, nil
}

// CompleteStream reads the newline-delimited JSON stream of /api/generate.
func (o *OllamaCompleter) CompleteStream(ctx context.Context, system, prompt string, onDelta func(string) error) error {
	resp, err := ollamaPost(ctx, o.client, o.url+"/api/generate", ollamaCompletionRequest{
		Model:  o.model,
		System: system,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return err
	}
	defer drain(resp)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaCompletionResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidResponse, err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Response != "" {
			if err := onDelta(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return contextError(ctx, "ollama stream", err)
	}
	return nil
}

// ollamaPost sends body as JSON and maps transport and status failures onto
// the provider sentinels. The caller owns the returned body on success.
func ollamaPost(ctx context.Context, client *http.Client, endpoint string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, contextError(ctx, "ollama request", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		drain(resp)
		return nil, fmt.Errorf("%w: HTTP 429", ErrRateLimit)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		drain(resp)
		return nil, fmt.Errorf("%w: HTTP %d", ErrTimeout, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		drain(resp)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

var (
	_ StreamCompleter = (*OllamaCompleter)(nil)
	_ Embedder        = (*OllamaEmbedder)(nil)
)
