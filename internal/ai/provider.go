package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Task types passed through to providers that distinguish the two sides of
// retrieval embedding.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

var ErrUnavailable = errors.New("embedding provider unavailable")

// IProvider is one configured backend able to embed text with any of its
// models.
type IProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

// IEmbedder is a provider bound to a single model; retrieval and indexing
// treat it as an opaque text -> vector function.
type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type embedder struct {
	provider IProvider
	model    string
}

func NewEmbedder(p IProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

func (e *embedder) ModelName() string {
	return e.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("embedder.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embedding provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode provider config: %w", err)
	}
	return nil
}
