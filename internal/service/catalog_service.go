package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/corpusd/corpusd/internal/filestore"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// CatalogService is the single write path into the document catalog.
// Collectors hand it metadata plus the raw body; it stores the body, upserts
// the catalog row and kicks indexing. Registration never fails on an indexing
// error, the reindex job retries stale documents later.
type CatalogService struct {
	docs    *repo.DocumentRepo
	store   filestore.Store
	indexer *IndexService
}

func NewCatalogService(docs *repo.DocumentRepo, store filestore.Store, indexer *IndexService) *CatalogService {
	return &CatalogService{docs: docs, store: store, indexer: indexer}
}

// Register stores the body under its content hash and upserts the catalog
// row. Re-registering the same hash refreshes metadata only; a changed body
// is a new hash and therefore a new document.
func (s *CatalogService) Register(ctx context.Context, doc *model.Document, body []byte) (*model.Document, error) {
	if doc.DisplayName == "" {
		return nil, fmt.Errorf("display_name is required: %w", errors.ErrInvalid)
	}
	if !model.ValidSourceType(doc.SourceType) {
		return nil, fmt.Errorf("unknown source_type %q: %w", doc.SourceType, errors.ErrInvalid)
	}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])
		if doc.ContentHash != "" && doc.ContentHash != hash {
			return nil, fmt.Errorf("content_hash does not match body: %w", errors.ErrInvalid)
		}
		doc.ContentHash = hash
		doc.SizeBytes = int64(len(body))
		doc.Location = bodyKey(hash)
		if err := s.store.Save(ctx, doc.Location, bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("store document body: %w", err)
		}
	}
	if doc.ContentHash == "" {
		return nil, fmt.Errorf("content_hash is required when no body is given: %w", errors.ErrInvalid)
	}

	stored, err := s.docs.Upsert(ctx, doc)
	if err != nil {
		return nil, err
	}
	if s.indexer != nil && stored.State == model.DocumentStateNormal && stored.IndexedAt < stored.Mtime {
		if err := s.indexer.IndexDocument(ctx, stored); err != nil {
			logutil.GetLogger(ctx).Warn("index on register failed, will retry via reindex job",
				zap.String("content_hash", stored.ContentHash), zap.Error(err))
		}
	}
	return stored, nil
}

func (s *CatalogService) Get(ctx context.Context, hash string) (*model.Document, error) {
	return s.docs.GetByHash(ctx, hash)
}

func (s *CatalogService) List(ctx context.Context, filter model.DocumentFilter) ([]model.Document, error) {
	if filter.Limit == 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.docs.List(ctx, filter)
}

// SoftDelete marks the document deleted. Chunks stay in place; every
// retrieval query filters on document state so they stop matching at once.
func (s *CatalogService) SoftDelete(ctx context.Context, hash string) error {
	doc, err := s.docs.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if doc.State == model.DocumentStateDeleted {
		return nil
	}
	return s.docs.SetState(ctx, hash, model.DocumentStateDeleted, time.Now().UnixMilli())
}

// Restore brings a soft-deleted document back; its chunks were never removed
// so no reindex is needed.
func (s *CatalogService) Restore(ctx context.Context, hash string) error {
	doc, err := s.docs.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if doc.State == model.DocumentStateNormal {
		return nil
	}
	return s.docs.SetState(ctx, hash, model.DocumentStateNormal, 0)
}

// HardDelete removes the row for good. Chunks, selections and overrides go
// with it through the schema cascades.
func (s *CatalogService) HardDelete(ctx context.Context, hash string) error {
	doc, err := s.docs.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if err := s.docs.HardDelete(ctx, hash); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("document hard-deleted",
		zap.String("content_hash", hash), zap.Int64("document_id", doc.ID))
	return nil
}

func bodyKey(hash string) string {
	return "bodies/" + hash
}
