package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ConfigService owns both configuration singletons. Static config is loaded
// once at startup and immutable afterwards; dynamic config is cached and
// refreshed whenever the stored version moves past the cached one.
type ConfigService struct {
	repo   *repo.ConfigRepo
	static *model.StaticConfig

	mu     sync.RWMutex
	cached *model.DynamicConfig
}

func NewConfigService(configRepo *repo.ConfigRepo) *ConfigService {
	return &ConfigService{repo: configRepo}
}

// LoadStatic seeds static_config from deploy configuration, reads the stored
// row back and pins it for the process lifetime. Both singletons are seeded
// here so later reads never see an empty table.
func (s *ConfigService) LoadStatic(ctx context.Context, dep config.DeploymentConfig) (*model.StaticConfig, error) {
	seed := &model.StaticConfig{
		ID:                 model.StaticConfigID,
		DeploymentName:     dep.Name,
		EmbeddingModel:     dep.EmbeddingModel,
		EmbeddingDim:       dep.EmbeddingDim,
		ChunkSize:          dep.ChunkSize,
		ChunkOverlap:       dep.ChunkOverlap,
		DistanceMetric:     dep.DistanceMetric,
		InstalledPipelines: dep.InstalledPipelines,
		InstalledModels:    dep.InstalledModels,
		InstalledProviders: dep.InstalledProviders,
		AuthEnabled:        dep.AuthEnabled,
	}
	if err := s.repo.UpsertStatic(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed static config: %w", err)
	}
	if err := s.repo.SeedDynamic(ctx); err != nil {
		return nil, fmt.Errorf("seed dynamic config: %w", err)
	}
	stored, err := s.repo.GetStatic(ctx)
	if err != nil {
		return nil, fmt.Errorf("load static config: %w", err)
	}
	if stored.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("static config: embedding_dim must be positive, got %d", stored.EmbeddingDim)
	}
	if stored.EmbeddingModel == "" {
		return nil, fmt.Errorf("static config: embedding_model is empty")
	}
	s.static = stored
	logutil.GetLogger(ctx).Info("static config loaded",
		zap.String("deployment", stored.DeploymentName),
		zap.String("embedding_model", stored.EmbeddingModel),
		zap.Int("embedding_dim", stored.EmbeddingDim))
	return stored, nil
}

// Static returns the pinned deploy-time config. Callers must not mutate it.
func (s *ConfigService) Static() *model.StaticConfig {
	return s.static
}

// Dynamic returns the current runtime config. The cached copy is served as
// long as its version matches the stored one, so concurrent readers cost one
// cheap version lookup instead of a full row scan.
func (s *ConfigService) Dynamic(ctx context.Context) (*model.DynamicConfig, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()

	version, err := s.repo.GetDynamicVersion(ctx)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Version == version {
		cp := *cached
		return &cp, nil
	}
	fresh, err := s.repo.GetDynamic(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cached = fresh
	s.mu.Unlock()
	cp := *fresh
	return &cp, nil
}

// Update validates the patch against the static config and current values,
// applies it with its audit trail in one transaction and refreshes the cache.
func (s *ConfigService) Update(ctx context.Context, actor string, patch *model.DynamicConfigPatch) (*model.DynamicConfig, error) {
	current, err := s.Dynamic(ctx)
	if err != nil {
		return nil, err
	}
	next, audits, err := validatePatch(s.static, current, actor, patch)
	if err != nil {
		return nil, err
	}
	if len(audits) == 0 {
		return current, nil
	}
	updated, err := s.repo.UpdateDynamic(ctx, next, audits)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cached = updated
	s.mu.Unlock()
	logutil.GetLogger(ctx).Info("dynamic config updated",
		zap.String("actor", actor),
		zap.Int("changed_fields", len(audits)),
		zap.Int64("version", updated.Version))
	cp := *updated
	return &cp, nil
}

func (s *ConfigService) ListAudit(ctx context.Context, limit, offset uint) ([]model.ConfigAuditEntry, error) {
	if limit == 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListAudit(ctx, limit, offset)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// validatePatch checks every changed field, collecting all violations rather
// than stopping at the first, and produces the next config plus one audit
// entry per actually-changed field.
func validatePatch(static *model.StaticConfig, current *model.DynamicConfig, actor string, patch *model.DynamicConfigPatch) (*model.DynamicConfig, []model.ConfigAuditEntry, error) {
	verr := errors.NewValidation()
	next := *current
	now := time.Now().UnixMilli()
	var audits []model.ConfigAuditEntry

	record := func(field, oldVal, newVal string) {
		if oldVal == newVal {
			return
		}
		audits = append(audits, model.ConfigAuditEntry{
			Actor:    actor,
			Field:    field,
			OldValue: oldVal,
			NewValue: newVal,
			Ctime:    now,
		})
	}

	if patch.ActiveModel != nil {
		if !contains(static.InstalledModels, *patch.ActiveModel) {
			verr.Add("active_model", fmt.Sprintf("model %q is not installed", *patch.ActiveModel))
		} else {
			record("active_model", next.ActiveModel, *patch.ActiveModel)
			next.ActiveModel = *patch.ActiveModel
		}
	}
	if patch.ActivePipeline != nil {
		if !contains(static.InstalledPipelines, *patch.ActivePipeline) {
			verr.Add("active_pipeline", fmt.Sprintf("pipeline %q is not installed", *patch.ActivePipeline))
		} else {
			record("active_pipeline", next.ActivePipeline, *patch.ActivePipeline)
			next.ActivePipeline = *patch.ActivePipeline
		}
	}
	if patch.Temperature != nil {
		if *patch.Temperature < 0 || *patch.Temperature > 2 {
			verr.Add("temperature", fmt.Sprintf("must be within [0, 2], got %g", *patch.Temperature))
		} else {
			record("temperature", formatFloat(next.Temperature), formatFloat(*patch.Temperature))
			next.Temperature = *patch.Temperature
		}
	}
	if patch.MaxTokens != nil {
		if *patch.MaxTokens <= 0 {
			verr.Add("max_tokens", fmt.Sprintf("must be positive, got %d", *patch.MaxTokens))
		} else {
			record("max_tokens", strconv.Itoa(next.MaxTokens), strconv.Itoa(*patch.MaxTokens))
			next.MaxTokens = *patch.MaxTokens
		}
	}
	if patch.TopP != nil {
		if *patch.TopP <= 0 || *patch.TopP > 1 {
			verr.Add("top_p", fmt.Sprintf("must be within (0, 1], got %g", *patch.TopP))
		} else {
			record("top_p", formatFloat(next.TopP), formatFloat(*patch.TopP))
			next.TopP = *patch.TopP
		}
	}
	if patch.TopK != nil {
		if *patch.TopK < 0 {
			verr.Add("top_k", fmt.Sprintf("must be non-negative, got %d", *patch.TopK))
		} else {
			record("top_k", strconv.Itoa(next.TopK), strconv.Itoa(*patch.TopK))
			next.TopK = *patch.TopK
		}
	}
	if patch.ActivePrompt != nil {
		record("active_prompt", next.ActivePrompt, *patch.ActivePrompt)
		next.ActivePrompt = *patch.ActivePrompt
	}
	if patch.RetrieveCount != nil {
		if *patch.RetrieveCount < 1 || *patch.RetrieveCount > 100 {
			verr.Add("retrieve_count", fmt.Sprintf("must be within [1, 100], got %d", *patch.RetrieveCount))
		} else {
			record("retrieve_count", strconv.Itoa(next.RetrieveCount), strconv.Itoa(*patch.RetrieveCount))
			next.RetrieveCount = *patch.RetrieveCount
		}
	}
	if patch.HybridEnabled != nil {
		record("hybrid_enabled", strconv.FormatBool(next.HybridEnabled), strconv.FormatBool(*patch.HybridEnabled))
		next.HybridEnabled = *patch.HybridEnabled
	}
	if patch.SemanticWeight != nil {
		if *patch.SemanticWeight < 0 || *patch.SemanticWeight > 1 {
			verr.Add("semantic_weight", fmt.Sprintf("must be within [0, 1], got %g", *patch.SemanticWeight))
		} else {
			record("semantic_weight", formatFloat(next.SemanticWeight), formatFloat(*patch.SemanticWeight))
			next.SemanticWeight = *patch.SemanticWeight
		}
	}
	if patch.LexicalWeight != nil {
		if *patch.LexicalWeight < 0 || *patch.LexicalWeight > 1 {
			verr.Add("lexical_weight", fmt.Sprintf("must be within [0, 1], got %g", *patch.LexicalWeight))
		} else {
			record("lexical_weight", formatFloat(next.LexicalWeight), formatFloat(*patch.LexicalWeight))
			next.LexicalWeight = *patch.LexicalWeight
		}
	}

	if verr.HasErrors() {
		return nil, nil, verr
	}
	next.UpdatedBy = actor
	next.Mtime = now
	return &next, audits, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
