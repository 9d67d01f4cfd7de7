package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	anthropicModel      = "claude-sonnet-4-20250514"
)

// AnthropicClient sends completions to the Anthropic Messages API.
type AnthropicClient struct {
	apiKey string
	model  string
	api    jsonEndpoint
}

// NewAnthropicClient builds a Messages API transport. The key falls back to
// ANTHROPIC_API_KEY; BaseURL replaces the API host.
func NewAnthropicClient(config ClientConfig) *AnthropicClient {
	c := &AnthropicClient{apiKey: config.APIKey, model: config.Model}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.model == "" {
		c.model = anthropicModel
	}
	base := anthropicAPIURL
	if config.BaseURL != "" {
		base = strings.TrimRight(config.BaseURL, "/")
	}

	h := http.Header{}
	h.Set("x-api-key", c.apiKey)
	h.Set("anthropic-version", anthropicAPIVersion)
	c.api = newJSONEndpoint("anthropic", base+"/v1/messages", config.Timeout, h)
	return c
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) name() string { return "anthropic" }

func (c *AnthropicClient) available() bool { return c.apiKey != "" }

// complete returns the first text block of the reply. The Messages API
// requires max_tokens, so an unset limit becomes 1024.
func (c *AnthropicClient) complete(ctx context.Context, in completion) (string, error) {
	req := anthropicRequest{Model: c.model, MaxTokens: in.MaxTokens, System: in.System}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}
	req.Messages = []chatMessage{{Role: "user", Content: in.Prompt}}

	var resp anthropicResponse
	if err := c.api.post(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("anthropic error %s: %s", resp.Error.Type, resp.Error.Message)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("anthropic response has no text block")
}
