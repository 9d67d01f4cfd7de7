package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/nvandessel/resonance/internal/models"
)

// ErrLocalUnavailable is returned by the "local" provider when the embedding
// model or its shared libraries cannot be found, or the binary was built
// without the llamacpp tag.
var ErrLocalUnavailable = errors.New("local embedding model unavailable")

// LocalConfig locates the GGUF embedding model behind the "local" provider.
type LocalConfig struct {
	// LibPath is the directory holding the llama.cpp shared libraries.
	// Empty falls back to YZMA_LIB.
	LibPath string `json:"lib_path,omitempty" yaml:"lib_path,omitempty" env:"LIB_PATH"`

	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty" env:"MODEL_PATH"`

	// GPULayers is how many layers to offload (0 = CPU only).
	GPULayers int `json:"gpu_layers,omitempty" yaml:"gpu_layers,omitempty" env:"GPU_LAYERS"`
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		na += float64(x) * float64(x)
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

// normalize scales vec to unit length in place.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
}

// embeddingRelevance scores how close a feed is to a persona's interests in
// embedding space. Persona vectors are cached by profile text, since a
// persona is asked about many feeds per run.
type embeddingRelevance struct {
	embedder Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

func newEmbeddingRelevance(e Embedder) *embeddingRelevance {
	return &embeddingRelevance{embedder: e, cache: make(map[string][]float32)}
}

// profileText is what gets embedded for a persona.
func profileText(p *models.AgentProfile) string {
	return "Interested in " + strings.Join(p.Interests, ", ") + ". " + p.Bio
}

// score returns the cosine similarity clamped to [0, 1].
func (r *embeddingRelevance) score(ctx context.Context, p *models.AgentProfile, feed string) (float64, error) {
	key := profileText(p)

	r.mu.Lock()
	pv, ok := r.cache[key]
	r.mu.Unlock()
	if !ok {
		var err error
		if pv, err = r.embedder.Embed(ctx, key); err != nil {
			return 0, err
		}
		r.mu.Lock()
		r.cache[key] = pv
		r.mu.Unlock()
	}

	fv, err := r.embedder.Embed(ctx, feed)
	if err != nil {
		return 0, err
	}
	return min(max(CosineSimilarity(pv, fv), 0), 1), nil
}
