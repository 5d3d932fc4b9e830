package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Provider        string
	Model           string
	EmbedModel      string
	Args            interface{}
	Timeout         int
	MaxContextChars int
	// EmbedderWrap decorates the assembled embedding chain, typically with
	// a cache layer. Nil means no decoration.
	EmbedderWrap func(IEmbedder) IEmbedder
}

// Manager owns the embedding and generation chains of one deployment. The
// remote backend is used when its API key looks usable, with the local
// hashing embedder behind it; without a usable key the local embedder runs
// alone and generation is reported as unavailable so callers can degrade.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	remote    bool
	cfg       ManagerConfig
}

type keyProbe struct {
	APIKey string `json:"api_key"`
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	probe := &keyProbe{}
	if cfg.Args != nil {
		if err := decodeConfig(cfg.Args, probe); err != nil {
			return nil, err
		}
	}
	remote := PlausibleAPIKey(probe.APIKey)

	var generator IGenerator
	embedders := make([]EmbedderEntry, 0, 2)
	if remote {
		provider, err := NewProvider(cfg.Provider, cfg.Args)
		if err != nil {
			return nil, err
		}
		generator = NewGenerator(provider, cfg.Model)
		embedders = append(embedders, EmbedderEntry{
			Name:     provider.Name() + "/" + cfg.EmbedModel,
			Embedder: NewEmbedder(provider, cfg.EmbedModel),
		})
	}
	local := NewLocalEmbedder()
	embedders = append(embedders, EmbedderEntry{Name: local.ModelName(), Embedder: local})
	embedder := NewGroupEmbedder(embedders)
	if embedder == nil || embedder.Dimension() <= 0 {
		return nil, fmt.Errorf("no usable embedding backend")
	}
	if cfg.EmbedderWrap != nil {
		embedder = cfg.EmbedderWrap(embedder)
	}
	return &Manager{
		generator: generator,
		embedder:  embedder,
		remote:    remote,
		cfg:       cfg,
	}, nil
}

func (m *Manager) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.embedder.Embed(ctx, texts, taskType)
}

func (m *Manager) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if m.generator == nil {
		return "", ErrUnavailable
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

// GenerateAvailable reports whether an LLM backend is configured at all.
// Callers with a non-LLM fallback check this before building a prompt.
func (m *Manager) GenerateAvailable() bool {
	return m.generator != nil
}

func (m *Manager) RemoteBacked() bool {
	return m.remote
}

func (m *Manager) EmbedDimension() int {
	if m.embedder == nil {
		return 0
	}
	return m.embedder.Dimension()
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}

func (m *Manager) MaxContextChars() int {
	return m.cfg.MaxContextChars
}
