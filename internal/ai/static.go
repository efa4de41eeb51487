package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

type staticConfig struct {
	Dim int `json:"dim"`
}

// staticProvider produces deterministic hash-derived unit vectors. Useful
// for development deployments and tests that need no network provider.
type staticProvider struct {
	dim int
}

func init() {
	Register("static", createStaticProvider)
}

func createStaticProvider(args interface{}) (IProvider, error) {
	cfg := &staticConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 768
	}
	return &staticProvider{dim: cfg.Dim}, nil
}

func (p *staticProvider) Name() string {
	return "static"
}

func (p *staticProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = ctx
	_ = taskType
	seed := sha256.Sum256([]byte(model + "\x00" + text))
	values := make([]float32, p.dim)
	var norm float64
	state := seed
	for i := 0; i < p.dim; i++ {
		if i%4 == 0 && i > 0 {
			state = sha256.Sum256(state[:])
		}
		bits := binary.BigEndian.Uint64(state[(i%4)*8 : (i%4)*8+8])
		v := float64(bits%20001)/10000.0 - 1.0
		values[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range values {
			values[i] *= scale
		}
	}
	return values, nil
}
