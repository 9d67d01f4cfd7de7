package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/ratelimit"
)

// completion is a single prompt sent to a backend.
type completion struct {
	System    string
	Prompt    string
	MaxTokens int
}

// completer is the per-provider transport. Prompt construction and response
// parsing are shared by every provider.
type completer interface {
	name() string
	available() bool
	complete(ctx context.Context, req completion) (string, error)
}

// apiError is a non-2xx response from a provider.
type apiError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// retryable reports whether a failed call is worth repeating.
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.StatusCode == http.StatusTooManyRequests || ae.StatusCode >= 500
	}
	return true
}

// promptClient implements Client on top of a completer.
type promptClient struct {
	backend        completer
	limiter        *ratelimit.Bucket
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger
}

func newPromptClient(c completer, cfg ClientConfig, logger *slog.Logger) *promptClient {
	pc := &promptClient{
		backend:        c,
		maxRetries:     max(cfg.MaxRetries, 0),
		initialBackoff: 500 * time.Millisecond,
		logger:         logger,
	}
	pc.limiter = ratelimit.NewBucket(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond))
	return pc
}

// GeneratePersonas implements PopulationGenerator.
func (c *promptClient) GeneratePersonas(ctx context.Context, audience string, count int) ([]PersonaRecord, error) {
	raw, err := c.call(ctx, "population", completion{
		System:    systemPrompt,
		Prompt:    PopulationPrompt(audience, count),
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("generating personas: %w", err)
	}
	records, err := ParsePopulationResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing population response: %w", err)
	}
	return records, nil
}

// React implements Reactor.
func (c *promptClient) React(ctx context.Context, persona *models.AgentProfile, feed string) (*Decision, error) {
	raw, err := c.call(ctx, "reaction", completion{
		System:    systemPrompt,
		Prompt:    ReactionPrompt(persona, feed),
		MaxTokens: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("reacting: %w", err)
	}
	d, err := ParseDecision(raw, persona.Mood)
	if err != nil {
		return nil, fmt.Errorf("parsing reaction response: %w", err)
	}
	return d, nil
}

// Rewrite implements Rewriter.
func (c *promptClient) Rewrite(ctx context.Context, req RewriteRequest) (*Rewrite, error) {
	if req.Result == nil {
		return nil, fmt.Errorf("rewrite request has no result")
	}
	raw, err := c.call(ctx, "rewrite", completion{
		System:    systemPrompt,
		Prompt:    RewritePrompt(req),
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("rewriting campaign: %w", err)
	}
	rw, err := ParseRewriteResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing rewrite response: %w", err)
	}
	return rw, nil
}

// Available implements Client.
func (c *promptClient) Available() bool { return c.backend.available() }

// call paces, sends and retries one completion.
func (c *promptClient) call(ctx context.Context, op string, req completion) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	c.logger.Log(ctx, logging.LevelTrace, "llm request", "provider", c.backend.name(), "op", op, "prompt", req.Prompt)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff

	attempt := 0
	raw, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := c.backend.complete(ctx, req)
		if err != nil {
			if !retryable(err) {
				return "", backoff.Permanent(err)
			}
			c.logger.Debug("llm call failed", "provider", c.backend.name(), "op", op, "attempt", attempt, "error", err)
			return "", err
		}
		return out, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	if err != nil {
		return "", err
	}

	c.logger.Log(ctx, logging.LevelTrace, "llm response", "provider", c.backend.name(), "op", op, "response", raw)
	return raw, nil
}
