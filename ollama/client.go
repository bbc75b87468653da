// Package ollama wraps the Ollama API client with the few calls chatdesk
// needs: streaming chat, model listing and a reachability check.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const DefaultBaseURL = "http://localhost:11434"

// pingTimeout bounds Ping so an unreachable host does not hang the caller.
const pingTimeout = 5 * time.Second

type Client struct {
	client  *api.Client
	baseURL string
}

// ChunkFunc receives each streamed response. Returning an error stops the stream.
type ChunkFunc func(resp api.ChatResponse) error

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:  api.NewClient(parsedURL, httpClient),
		baseURL: baseURL,
	}, nil
}

// Chat sends a chat request. With stream=true fn is called once per chunk,
// otherwise once with the full response.
func (c *Client) Chat(ctx context.Context, req *api.ChatRequest, stream bool, fn ChunkFunc) error {
	req.Stream = &stream
	return c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		return fn(resp)
	})
}

// ListModels returns the names of locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, len(resp.Models))
	for i, m := range resp.Models {
		names[i] = m.Name
	}
	return names, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// toolCallingModels tracks which model families support tool calling.
// Curated from Ollama documentation and community testing.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,

	"llama3-gradient": false,
	"llama3":          false,
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// orderedPrefixes lists prefixes most specific first, so "llama3.2" is
// matched before the generic "llama3".
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

// ModelSupportsToolCalling reports whether a model family is known to handle
// Ollama's tools API. Unknown models are assumed not to.
func ModelSupportsToolCalling(modelName string) bool {
	modelName = strings.ToLower(modelName)

	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return toolCallingModels[prefix]
		}
	}
	return false
}
