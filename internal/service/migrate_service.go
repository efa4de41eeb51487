package service

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/corpusd/corpusd/internal/filestore"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultMigrateBatch = 200

// scanBufSize bounds a single dump line; embedding vectors serialize large.
const scanBufSize = 8 << 20

type checkpointStore interface {
	Ensure(ctx context.Context, source string) error
	Get(ctx context.Context, source string) (*model.MigrationCheckpoint, error)
	Update(ctx context.Context, cp *model.MigrationCheckpoint) error
	AcquireRunLock(ctx context.Context, source string) (*sql.Conn, error)
	ReleaseRunLock(ctx context.Context, conn *sql.Conn, source string)
}

type migrationDocs interface {
	Upsert(ctx context.Context, doc *model.Document) (*model.Document, error)
	StampIndexed(ctx context.Context, id int64, indexedAt int64) error
}

type migrationChunks interface {
	Append(ctx context.Context, documentID int64, chunks []model.Chunk) error
}

// MigrateReport is what a run (or dry run) hands back to the CLI.
type MigrateReport struct {
	Source    string `json:"source"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Processed int64  `json:"processed"`
	Remaining int64  `json:"remaining"`
	DryRun    bool   `json:"dry_run"`
}

// MigrateService imports legacy dump files batch by batch, committing a
// checkpoint after every batch so an interrupted run resumes where it
// stopped instead of starting over. A per-source advisory lock keeps
// concurrent invocations out.
type MigrateService struct {
	checkpoints checkpointStore
	docs        migrationDocs
	chunks      migrationChunks
	store       filestore.Store
	dim         int
	batchSize   int
}

func NewMigrateService(checkpoints checkpointStore, docs migrationDocs, chunks migrationChunks, store filestore.Store, dim int, batchSize int) *MigrateService {
	if batchSize <= 0 {
		batchSize = defaultMigrateBatch
	}
	return &MigrateService{checkpoints: checkpoints, docs: docs, chunks: chunks, store: store, dim: dim, batchSize: batchSize}
}

func dumpKey(source string) string {
	return source + ".jsonl"
}

// Analyze counts the records still to import without writing anything.
func (s *MigrateService) Analyze(ctx context.Context, source string) (*MigrateReport, error) {
	if !model.ValidMigrationSource(source) {
		return nil, fmt.Errorf("unknown migration source %q: %w", source, errors.ErrInvalid)
	}
	if err := s.checkpoints.Ensure(ctx, source); err != nil {
		return nil, err
	}
	cp, err := s.checkpoints.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	total, err := s.countRecords(ctx, source)
	if err != nil {
		return nil, err
	}
	remaining := total - cp.Offset
	if remaining < 0 {
		remaining = 0
	}
	return &MigrateReport{
		Source:    source,
		Status:    cp.Status,
		Total:     total,
		Processed: cp.Processed,
		Remaining: remaining,
		DryRun:    true,
	}, nil
}

// Run imports everything past the current checkpoint. Re-running a completed
// source is a no-op.
func (s *MigrateService) Run(ctx context.Context, source string) (*MigrateReport, error) {
	if !model.ValidMigrationSource(source) {
		return nil, fmt.Errorf("unknown migration source %q: %w", source, errors.ErrInvalid)
	}
	if err := s.checkpoints.Ensure(ctx, source); err != nil {
		return nil, err
	}
	lock, err := s.checkpoints.AcquireRunLock(ctx, source)
	if err != nil {
		if errors.IsConflict(err) {
			return nil, fmt.Errorf("migration of %s already running: %w", source, errors.ErrMigration)
		}
		return nil, err
	}
	defer s.checkpoints.ReleaseRunLock(ctx, lock, source)

	cp, err := s.checkpoints.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	if cp.Status == model.MigrationStatusCompleted {
		logutil.GetLogger(ctx).Info("nothing to migrate", zap.String("source", source))
		return &MigrateReport{Source: source, Status: cp.Status, Total: cp.Total, Processed: cp.Processed}, nil
	}

	cp.Status = model.MigrationStatusAnalyzing
	if err := s.commit(ctx, cp); err != nil {
		return nil, err
	}
	total, err := s.countRecords(ctx, source)
	if err != nil {
		return nil, s.fail(ctx, cp, err)
	}
	cp.Total = total
	cp.Status = model.MigrationStatusMigrating
	if err := s.commit(ctx, cp); err != nil {
		return nil, err
	}

	if err := s.migrate(ctx, source, cp); err != nil {
		return nil, s.fail(ctx, cp, err)
	}

	cp.Status = model.MigrationStatusCompleted
	cp.LastError = ""
	if err := s.commit(ctx, cp); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("migration completed",
		zap.String("source", source), zap.Int64("processed", cp.Processed))
	return &MigrateReport{Source: source, Status: cp.Status, Total: cp.Total, Processed: cp.Processed}, nil
}

func (s *MigrateService) migrate(ctx context.Context, source string, cp *model.MigrationCheckpoint) error {
	body, err := s.store.Open(ctx, dumpKey(source))
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), scanBufSize)

	// Every run re-reads from the top; committed records are skipped by
	// line position, which is why the dump must be append-only.
	var line int64
	docCache := map[string]int64{}
	batch := make([]json.RawMessage, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.applyBatch(ctx, source, batch, docCache); err != nil {
			return err
		}
		n := int64(len(batch))
		cp.Offset += n
		cp.Processed += n
		batch = batch[:0]
		return s.commit(ctx, cp)
	}

	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		line++
		if line <= cp.Offset {
			continue
		}
		batch = append(batch, append(json.RawMessage(nil), raw...))
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dump: %w", err)
	}
	return flush()
}

func (s *MigrateService) applyBatch(ctx context.Context, source string, batch []json.RawMessage, docCache map[string]int64) error {
	switch source {
	case model.MigrationSourceLegacyVectors:
		return s.applyVectorBatch(ctx, batch, docCache)
	case model.MigrationSourceLegacyCatalog:
		return s.applyCatalogBatch(ctx, batch)
	}
	return fmt.Errorf("unknown migration source %q: %w", source, errors.ErrInvalid)
}

type legacyVectorRecord struct {
	ContentHash  string            `json:"content_hash"`
	DocumentName string            `json:"document_name"`
	SourceType   string            `json:"source_type"`
	ChunkIndex   int               `json:"chunk_index"`
	Content      string            `json:"content"`
	Embedding    []float32         `json:"embedding"`
	StartOffset  int               `json:"start_offset"`
	EndOffset    int               `json:"end_offset"`
	Metadata     map[string]string `json:"metadata"`
}

func (s *MigrateService) applyVectorBatch(ctx context.Context, batch []json.RawMessage, docCache map[string]int64) error {
	perDoc := map[int64][]model.Chunk{}
	for _, raw := range batch {
		var rec legacyVectorRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode vector record: %w: %v", errors.ErrMigration, err)
		}
		if rec.ContentHash == "" {
			return fmt.Errorf("vector record without content_hash: %w", errors.ErrMigration)
		}
		if len(rec.Embedding) != s.dim {
			return fmt.Errorf("record %s/%d: %w", rec.ContentHash, rec.ChunkIndex,
				&errors.DimensionMismatchError{Want: s.dim, Got: len(rec.Embedding)})
		}
		docID, ok := docCache[rec.ContentHash]
		if !ok {
			doc, err := s.docs.Upsert(ctx, &model.Document{
				ContentHash: rec.ContentHash,
				DisplayName: orDefault(rec.DocumentName, rec.ContentHash),
				SourceType:  normalizeSourceType(rec.SourceType),
				Metadata:    rec.Metadata,
			})
			if err != nil {
				return fmt.Errorf("upsert document %s: %w", rec.ContentHash, err)
			}
			docID = doc.ID
			docCache[rec.ContentHash] = docID
		}
		perDoc[docID] = append(perDoc[docID], model.Chunk{
			DocumentID:  docID,
			ChunkIndex:  rec.ChunkIndex,
			Content:     rec.Content,
			Embedding:   rec.Embedding,
			StartOffset: rec.StartOffset,
			EndOffset:   rec.EndOffset,
			Metadata:    rec.Metadata,
		})
	}
	now := time.Now().UnixMilli()
	for docID, chunks := range perDoc {
		if err := s.chunks.Append(ctx, docID, chunks); err != nil {
			return err
		}
		if err := s.docs.StampIndexed(ctx, docID, now); err != nil {
			return err
		}
	}
	return nil
}

type legacyCatalogRecord struct {
	ContentHash string            `json:"content_hash"`
	DisplayName string            `json:"display_name"`
	SourceType  string            `json:"source_type"`
	SourceURL   string            `json:"source_url"`
	TicketID    string            `json:"ticket_id"`
	Repo        string            `json:"repo"`
	CommitHash  string            `json:"commit_hash"`
	MimeType    string            `json:"mime_type"`
	Body        string            `json:"body"`
	Metadata    map[string]string `json:"metadata"`
}

func (s *MigrateService) applyCatalogBatch(ctx context.Context, batch []json.RawMessage) error {
	for _, raw := range batch {
		var rec legacyCatalogRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode catalog record: %w: %v", errors.ErrMigration, err)
		}
		if rec.ContentHash == "" {
			return fmt.Errorf("catalog record without content_hash: %w", errors.ErrMigration)
		}
		doc := &model.Document{
			ContentHash: rec.ContentHash,
			DisplayName: orDefault(rec.DisplayName, rec.ContentHash),
			SourceType:  normalizeSourceType(rec.SourceType),
			SourceURL:   rec.SourceURL,
			TicketID:    rec.TicketID,
			Repo:        rec.Repo,
			CommitHash:  rec.CommitHash,
			MimeType:    rec.MimeType,
			Metadata:    rec.Metadata,
		}
		if rec.Body != "" {
			doc.Location = bodyKey(rec.ContentHash)
			doc.SizeBytes = int64(len(rec.Body))
			if err := s.store.Save(ctx, doc.Location, strings.NewReader(rec.Body)); err != nil {
				return fmt.Errorf("store body of %s: %w", rec.ContentHash, err)
			}
		}
		if _, err := s.docs.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("upsert document %s: %w", rec.ContentHash, err)
		}
	}
	return nil
}

func (s *MigrateService) countRecords(ctx context.Context, source string) (int64, error) {
	body, err := s.store.Open(ctx, dumpKey(source))
	if err != nil {
		return 0, fmt.Errorf("open dump: %w", err)
	}
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), scanBufSize)
	var total int64
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			total++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read dump: %w", err)
	}
	return total, nil
}

func (s *MigrateService) commit(ctx context.Context, cp *model.MigrationCheckpoint) error {
	cp.Mtime = time.Now().UnixMilli()
	return s.checkpoints.Update(ctx, cp)
}

// fail records the failure on the checkpoint, keeping the last committed
// offset so the next run resumes there.
func (s *MigrateService) fail(ctx context.Context, cp *model.MigrationCheckpoint, cause error) error {
	cp.Status = model.MigrationStatusFailed
	cp.LastError = cause.Error()
	if err := s.commit(ctx, cp); err != nil {
		logutil.GetLogger(ctx).Error("record migration failure", zap.Error(err))
	}
	return fmt.Errorf("%w: %v", errors.ErrMigration, cause)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func normalizeSourceType(v string) string {
	if model.ValidSourceType(v) {
		return v
	}
	return model.SourceTypeUnknown
}
