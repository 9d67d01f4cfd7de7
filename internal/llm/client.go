// Package llm talks to the inference services that generate personas, decide
// persona reactions, and rewrite campaigns. It supports Anthropic, OpenAI and
// Gemini backends plus a rule-based offline implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nvandessel/resonance/internal/models"
)

var (
	// ErrMissingCredentials is returned when a network provider has no API key.
	ErrMissingCredentials = errors.New("missing API credentials")

	// ErrMalformedResponse is returned when a response cannot be parsed.
	ErrMalformedResponse = errors.New("malformed response")
)

// PersonaRecord is one persona as described by the population service,
// before it is assigned an id and mood.
type PersonaRecord struct {
	Name             string
	Age              int
	Location         string
	Bio              string
	Personality      models.PersonalityType
	PoliticalLeaning models.PoliticalLeaning
	PurchasingPower  models.PurchasingPower
	Interests        []string
	InfluenceScore   float64
}

// Decision is a persona's reaction to what it sees.
type Decision struct {
	Action    models.ActionType `json:"action"`
	Content   string            `json:"content,omitempty"`
	Mood      models.Mood       `json:"new_mood"`
	Reasoning string            `json:"reasoning,omitempty"`
}

// RewriteRequest carries a generation's outcome to the rewrite service.
type RewriteRequest struct {
	Result  *models.SimulationResult
	Fitness float64

	// Comments and Mocks are bounded samples of persona text.
	Comments []string
	Mocks    []string
}

// Rewrite is the rewrite service's analysis and revised copy.
type Rewrite struct {
	Analysis                string   `json:"analysis"`
	Strengths               []string `json:"strengths"`
	Weaknesses              []string `json:"weaknesses"`
	RevisedContent          string   `json:"revised_content"`
	RevisedImageDescription string   `json:"revised_image_description"`
	Confidence              float64  `json:"confidence"`
}

// PopulationGenerator produces persona records for a target audience.
type PopulationGenerator interface {
	GeneratePersonas(ctx context.Context, audience string, count int) ([]PersonaRecord, error)
}

// Reactor decides how a persona reacts to the post and the reactions it can see.
type Reactor interface {
	React(ctx context.Context, persona *models.AgentProfile, feed string) (*Decision, error)
}

// Rewriter analyzes a generation and proposes revised campaign copy.
type Rewriter interface {
	Rewrite(ctx context.Context, req RewriteRequest) (*Rewrite, error)
}

// Client bundles every inference operation the simulation needs.
type Client interface {
	PopulationGenerator
	Reactor
	Rewriter

	// Available returns true if the client is configured and ready.
	Available() bool
}

// ClientConfig configures an LLM client.
type ClientConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "gemini",
	// "rules", or "local" (rules with embedding relevance).
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for network providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint. Used for OpenAI-compatible servers and tests.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the model identifier to use for requests.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRetries is how many times a failed call is retried with backoff.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`

	// Seed makes the rules provider's population reproducible.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Local locates the embedding model for the "local" provider.
	Local LocalConfig `json:"local,omitempty" yaml:"local,omitempty"`
}

// DefaultConfig returns a ClientConfig with sensible defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Provider:   "anthropic",
		Timeout:    60 * time.Second,
		MaxRetries: 2,
	}
}

// CheckCredentials reports whether cfg.Provider could be constructed,
// without building anything: network providers need an API key (or their
// conventional environment variable) and "local" needs its model on disk.
func CheckCredentials(cfg ClientConfig) error {
	switch cfg.Provider {
	case "rules", "fallback":
		return nil
	case "local":
		if !NewLocalEmbedder(cfg.Local).Available() {
			return fmt.Errorf("local: %w", ErrLocalUnavailable)
		}
		return nil
	case "anthropic", "":
		return requireKey("anthropic", cfg.APIKey, "ANTHROPIC_API_KEY")
	case "openai":
		return requireKey("openai", cfg.APIKey, "OPENAI_API_KEY")
	case "gemini":
		return requireKey("gemini", cfg.APIKey, "")
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func requireKey(provider, key, envVar string) error {
	if key == "" && envVar != "" {
		key = os.Getenv(envVar)
	}
	if key == "" {
		return fmt.Errorf("%s: %w", provider, ErrMissingCredentials)
	}
	return nil
}

// NewClient builds the client for cfg.Provider. Network providers without an
// API key yield ErrMissingCredentials, and "local" without a usable model
// yields ErrLocalUnavailable.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := CheckCredentials(cfg); err != nil {
		return nil, err
	}

	var (
		c   completer
		err error
	)
	switch cfg.Provider {
	case "rules", "fallback":
		return NewFallbackClient(cfg.Seed), nil
	case "local":
		logger.Info("using local embedding relevance", "model", cfg.Local.ModelPath)
		return NewFallbackClient(cfg.Seed).WithEmbedder(NewLocalEmbedder(cfg.Local)), nil
	case "anthropic", "":
		c = NewAnthropicClient(cfg)
	case "openai":
		c = NewOpenAIClient(cfg)
	case "gemini":
		c, err = NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
	}

	if !c.available() {
		return nil, fmt.Errorf("%s: %w", c.name(), ErrMissingCredentials)
	}
	return newPromptClient(c, cfg, logger), nil
}
