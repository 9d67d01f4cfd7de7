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
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIClient sends completions to an OpenAI-compatible chat completions
// API. BaseURL points it at any compatible server.
type OpenAIClient struct {
	apiKey string
	model  string
	api    jsonEndpoint
}

// NewOpenAIClient builds a chat completions transport. The key falls back
// to OPENAI_API_KEY.
func NewOpenAIClient(config ClientConfig) *OpenAIClient {
	c := &OpenAIClient{apiKey: config.APIKey, model: config.Model}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.model == "" {
		c.model = openAIDefaultModel
	}
	base := openAIBaseURL
	if config.BaseURL != "" {
		base = config.BaseURL
	}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	c.api = newJSONEndpoint("openai", strings.TrimRight(base, "/")+"/chat/completions", config.Timeout, h)
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) name() string { return "openai" }

func (c *OpenAIClient) available() bool { return c.apiKey != "" }

func (c *OpenAIClient) complete(ctx context.Context, in completion) (string, error) {
	req := chatRequest{Model: c.model, MaxTokens: in.MaxTokens}
	if in.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: in.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: in.Prompt})

	var resp chatResponse
	if err := c.api.post(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
