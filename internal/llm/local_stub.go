//go:build !llamacpp

package llm

import (
	"context"
	"fmt"
)

// LocalEmbedder stands in for the yzma embedder in builds without the
// llamacpp tag. It is never available.
type LocalEmbedder struct {
	cfg LocalConfig
}

// NewLocalEmbedder returns the stub embedder.
func NewLocalEmbedder(cfg LocalConfig) *LocalEmbedder {
	return &LocalEmbedder{cfg: cfg}
}

// Available always returns false.
func (e *LocalEmbedder) Available() bool { return false }

// Embed always fails with ErrLocalUnavailable.
func (e *LocalEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: build with -tags llamacpp", ErrLocalUnavailable)
}

// Close is a no-op.
func (e *LocalEmbedder) Close() error { return nil }
