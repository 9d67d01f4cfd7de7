package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/similarity"
)

// conceptEmbedder maps words onto a few concept dimensions, so synonyms
// embed close together without sharing any words.
type conceptEmbedder struct {
	mu     sync.Mutex
	calls  int
	closed bool
	fail   string
}

var concepts = map[string]int{
	"coffee": 0, "espresso": 0, "latte": 0,
	"running": 1, "marathon": 1, "jogging": 1,
	"gaming": 2, "console": 2,
}

func (e *conceptEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != "" && strings.Contains(text, e.fail) {
		return nil, errors.New("embedding backend down")
	}
	vec := make([]float32, 3)
	for _, w := range similarity.Tokenize(text) {
		if d, ok := concepts[w]; ok {
			vec[d]++
		}
	}
	return vec, nil
}

func (e *conceptEmbedder) Close() error {
	e.closed = true
	return nil
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize = %v", v)
	}
	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestFallbackClient_EmbeddingRelevance(t *testing.T) {
	ctx := context.Background()
	p := &models.AgentProfile{ID: "p1", Interests: []string{"coffee"}, Mood: models.MoodNeutral}
	feed := "=== SPONSORED POST ===\nFresh espresso every morning"

	plain, err := NewFallbackClient(1).React(ctx, p, feed)
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if !strings.HasPrefix(plain.Reasoning, "relevance 0.00") {
		t.Errorf("word overlap should miss the synonym: %q", plain.Reasoning)
	}

	emb := &conceptEmbedder{}
	c := NewFallbackClient(1).WithEmbedder(emb)
	d, err := c.React(ctx, p, feed)
	if err != nil {
		t.Fatalf("React with embedder: %v", err)
	}
	if !strings.HasPrefix(d.Reasoning, "relevance 1.00") {
		t.Errorf("embedding relevance not applied: %q", d.Reasoning)
	}

	// The persona vector is reused; only the new feed is embedded.
	if _, err := c.React(ctx, p, feed+" latte"); err != nil {
		t.Fatalf("React: %v", err)
	}
	if emb.calls != 3 {
		t.Errorf("Embed calls = %d, want 3", emb.calls)
	}

	if err := c.Close(); err != nil || !emb.closed {
		t.Errorf("Close = %v, closed = %v", err, emb.closed)
	}
}

func TestFallbackClient_EmbeddingFailure(t *testing.T) {
	c := NewFallbackClient(1).WithEmbedder(&conceptEmbedder{fail: "boom"})
	p := &models.AgentProfile{ID: "p1", Interests: []string{"coffee"}}
	if _, err := c.React(context.Background(), p, "boom goes the espresso"); err == nil {
		t.Error("expected embedding failure to surface")
	}
}

func TestFallbackClient_CloseWithoutEmbedder(t *testing.T) {
	if err := NewFallbackClient(1).Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestCheckCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("YZMA_LIB", "")

	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr error
	}{
		{"rules", ClientConfig{Provider: "rules"}, nil},
		{"anthropic with key", ClientConfig{Provider: "anthropic", APIKey: "k"}, nil},
		{"default provider without key", ClientConfig{}, ErrMissingCredentials},
		{"openai without key", ClientConfig{Provider: "openai"}, ErrMissingCredentials},
		{"gemini without key", ClientConfig{Provider: "gemini"}, ErrMissingCredentials},
		{"local without model", ClientConfig{Provider: "local"}, ErrLocalUnavailable},
		{"local with missing files", ClientConfig{Provider: "local", Local: LocalConfig{LibPath: "/nonexistent", ModelPath: "/nonexistent/m.gguf"}}, ErrLocalUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCredentials(tt.cfg)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CheckCredentials = %v, want nil", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckCredentials = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("env key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "from-env")
		if err := CheckCredentials(ClientConfig{Provider: "openai"}); err != nil {
			t.Errorf("CheckCredentials = %v", err)
		}
	})
	t.Run("unknown", func(t *testing.T) {
		if err := CheckCredentials(ClientConfig{Provider: "carrier-pigeon"}); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}
