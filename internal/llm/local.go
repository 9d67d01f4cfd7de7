//go:build llamacpp

package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// llama.Load and llama.Init are process-global.
var (
	libOnce    sync.Once
	libLoadErr error
)

func loadLib(dir string) error {
	libOnce.Do(func() {
		if err := llama.Load(dir); err != nil {
			libLoadErr = fmt.Errorf("loading llama.cpp libraries from %q: %w", dir, err)
			return
		}
		llama.LogSet(llama.LogSilent())
		llama.Init()
	})
	return libLoadErr
}

// LocalEmbedder embeds text with a GGUF model through yzma. The model loads
// on first use; calls are serialized and each gets its own llama context.
type LocalEmbedder struct {
	libPath   string
	modelPath string
	gpuLayers int32

	once    sync.Once
	loadErr error

	mu     sync.Mutex
	model  llama.Model
	vocab  llama.Vocab
	nEmbd  int32
	loaded bool
}

// NewLocalEmbedder returns an embedder for cfg. Nothing is loaded yet.
func NewLocalEmbedder(cfg LocalConfig) *LocalEmbedder {
	lib := cfg.LibPath
	if lib == "" {
		lib = os.Getenv("YZMA_LIB")
	}
	return &LocalEmbedder{
		libPath:   lib,
		modelPath: cfg.ModelPath,
		gpuLayers: int32(min(max(cfg.GPULayers, 0), math.MaxInt32)),
	}
}

// Available reports whether the library directory and model file exist. It
// loads nothing.
func (e *LocalEmbedder) Available() bool {
	if e.libPath == "" || e.modelPath == "" {
		return false
	}
	if info, err := os.Stat(e.libPath); err != nil || !info.IsDir() {
		return false
	}
	_, err := os.Stat(e.modelPath)
	return err == nil
}

func (e *LocalEmbedder) load() error {
	e.once.Do(func() {
		if !e.Available() {
			e.loadErr = ErrLocalUnavailable
			return
		}
		if err := loadLib(e.libPath); err != nil {
			e.loadErr = err
			return
		}
		params := llama.ModelDefaultParams()
		params.NGpuLayers = e.gpuLayers
		model, err := llama.ModelLoadFromFile(e.modelPath, params)
		if err != nil {
			e.loadErr = fmt.Errorf("loading model %s: %w", e.modelPath, err)
			return
		}
		if model == 0 {
			e.loadErr = fmt.Errorf("loading model %s: null handle", e.modelPath)
			return
		}
		e.model = model
		e.vocab = llama.ModelGetVocab(model)
		e.nEmbd = int32(llama.ModelNEmbd(model))
		e.loaded = true
	})
	return e.loadErr
}

// Embed returns the unit-length embedding of text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.load(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.loaded {
		return nil, fmt.Errorf("local embedder closed")
	}

	tokens := llama.Tokenize(e.vocab, text, true, true)
	params := llama.ContextDefaultParams()
	params.NCtx = uint32(min(len(tokens)+64, math.MaxUint32))

	lctx, err := llama.InitFromModel(e.model, params)
	if err != nil {
		return nil, fmt.Errorf("creating embedding context: %w", err)
	}
	defer func() { _ = llama.Free(lctx) }()

	llama.SetEmbeddings(lctx, true)
	if _, err := llama.Decode(lctx, llama.BatchGetOne(tokens)); err != nil {
		return nil, fmt.Errorf("decoding tokens: %w", err)
	}
	raw, err := llama.GetEmbeddingsSeq(lctx, 0, e.nEmbd)
	if err != nil {
		return nil, fmt.Errorf("reading embeddings: %w", err)
	}

	// raw is owned by lctx.
	vec := append([]float32(nil), raw...)
	normalize(vec)
	return vec, nil
}

// Close frees the model. The shared library stays loaded for the process.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		_ = llama.ModelFree(e.model)
		e.model, e.vocab, e.nEmbd, e.loaded = 0, 0, 0, false
	}
	return nil
}
