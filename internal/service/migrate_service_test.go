package service

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/errors"
	"github.com/stretchr/testify/require"
)

type memFileStore struct {
	files map[string][]byte
}

func newMemFileStore() *memFileStore {
	return &memFileStore{files: map[string][]byte{}}
}

func (m *memFileStore) Save(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[key] = data
	return nil
}

func (m *memFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, errors.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type memCheckpoints struct {
	cps    map[string]*model.MigrationCheckpoint
	locked map[string]bool
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cps: map[string]*model.MigrationCheckpoint{}, locked: map[string]bool{}}
}

func (m *memCheckpoints) Ensure(ctx context.Context, source string) error {
	if _, ok := m.cps[source]; !ok {
		m.cps[source] = &model.MigrationCheckpoint{Source: source, Status: model.MigrationStatusPending}
	}
	return nil
}

func (m *memCheckpoints) Get(ctx context.Context, source string) (*model.MigrationCheckpoint, error) {
	cp, ok := m.cps[source]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp2 := *cp
	return &cp2, nil
}

func (m *memCheckpoints) Update(ctx context.Context, cp *model.MigrationCheckpoint) error {
	cp2 := *cp
	m.cps[cp.Source] = &cp2
	return nil
}

func (m *memCheckpoints) AcquireRunLock(ctx context.Context, source string) (*sql.Conn, error) {
	if m.locked[source] {
		return nil, errors.ErrConflict
	}
	m.locked[source] = true
	return nil, nil
}

func (m *memCheckpoints) ReleaseRunLock(ctx context.Context, conn *sql.Conn, source string) {
	m.locked[source] = false
}

type memDocs struct {
	byHash  map[string]*model.Document
	nextID  int64
	stamped map[int64]int64
	upserts int
}

func newMemDocs() *memDocs {
	return &memDocs{byHash: map[string]*model.Document{}, stamped: map[int64]int64{}}
}

func (m *memDocs) Upsert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	m.upserts++
	if existing, ok := m.byHash[doc.ContentHash]; ok {
		cp := *doc
		cp.ID = existing.ID
		m.byHash[doc.ContentHash] = &cp
		out := cp
		return &out, nil
	}
	m.nextID++
	cp := *doc
	cp.ID = m.nextID
	cp.State = model.DocumentStateNormal
	m.byHash[doc.ContentHash] = &cp
	out := cp
	return &out, nil
}

func (m *memDocs) StampIndexed(ctx context.Context, id int64, indexedAt int64) error {
	m.stamped[id] = indexedAt
	return nil
}

type memChunks struct {
	byDoc     map[int64]map[int]model.Chunk
	appends   int
	failAfter int // fail on append number failAfter (1-based), 0 disables
}

func newMemChunks() *memChunks {
	return &memChunks{byDoc: map[int64]map[int]model.Chunk{}}
}

func (m *memChunks) Append(ctx context.Context, documentID int64, chunks []model.Chunk) error {
	m.appends++
	if m.failAfter > 0 && m.appends >= m.failAfter {
		return stderrors.New("chunk insert failed")
	}
	if m.byDoc[documentID] == nil {
		m.byDoc[documentID] = map[int]model.Chunk{}
	}
	for _, c := range chunks {
		m.byDoc[documentID][c.ChunkIndex] = c
	}
	return nil
}

func (m *memChunks) total() int {
	var n int
	for _, chunks := range m.byDoc {
		n += len(chunks)
	}
	return n
}

func vectorLine(hash string, index int, dim int) string {
	vec := "0.1"
	for i := 1; i < dim; i++ {
		vec += ",0.1"
	}
	return fmt.Sprintf(`{"content_hash":%q,"document_name":"doc-%s","source_type":"local_file","chunk_index":%d,"content":"chunk %d","embedding":[%s]}`,
		hash, hash, index, index, vec)
}

func seedVectorDump(store *memFileStore, lines ...string) {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	store.files["legacy_vectors.jsonl"] = buf.Bytes()
}

func TestMigrateVectorsEndToEnd(t *testing.T) {
	store := newMemFileStore()
	seedVectorDump(store,
		vectorLine("aaa", 0, 3), vectorLine("aaa", 1, 3), vectorLine("aaa", 2, 3),
		vectorLine("bbb", 0, 3), vectorLine("bbb", 1, 3))
	checkpoints := newMemCheckpoints()
	docs := newMemDocs()
	chunks := newMemChunks()
	svc := NewMigrateService(checkpoints, docs, chunks, store, 3, 2)

	report, err := svc.Run(context.Background(), model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	require.Equal(t, model.MigrationStatusCompleted, report.Status)
	require.Equal(t, int64(5), report.Total)
	require.Equal(t, int64(5), report.Processed)

	require.Len(t, docs.byHash, 2)
	require.Len(t, chunks.byDoc[docs.byHash["aaa"].ID], 3)
	require.Len(t, chunks.byDoc[docs.byHash["bbb"].ID], 2)
	require.NotZero(t, docs.stamped[docs.byHash["aaa"].ID])
}

func TestMigrateCompletedRunIsNoop(t *testing.T) {
	store := newMemFileStore()
	seedVectorDump(store, vectorLine("aaa", 0, 3))
	checkpoints := newMemCheckpoints()
	docs := newMemDocs()
	chunks := newMemChunks()
	svc := NewMigrateService(checkpoints, docs, chunks, store, 3, 10)
	ctx := context.Background()

	_, err := svc.Run(ctx, model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	appendsAfterFirst := chunks.appends
	upsertsAfterFirst := docs.upserts

	report, err := svc.Run(ctx, model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	require.Equal(t, model.MigrationStatusCompleted, report.Status)
	require.Equal(t, appendsAfterFirst, chunks.appends)
	require.Equal(t, upsertsAfterFirst, docs.upserts)
}

func TestMigrateFailurePreservesOffsetAndResumes(t *testing.T) {
	store := newMemFileStore()
	seedVectorDump(store,
		vectorLine("aaa", 0, 3), vectorLine("aaa", 1, 3),
		vectorLine("bbb", 0, 3), vectorLine("bbb", 1, 3))
	checkpoints := newMemCheckpoints()
	docs := newMemDocs()
	chunks := newMemChunks()
	chunks.failAfter = 2
	svc := NewMigrateService(checkpoints, docs, chunks, store, 3, 2)
	ctx := context.Background()

	_, err := svc.Run(ctx, model.MigrationSourceLegacyVectors)
	require.ErrorIs(t, err, errors.ErrMigration)

	cp, err := checkpoints.Get(ctx, model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	require.Equal(t, model.MigrationStatusFailed, cp.Status)
	require.Equal(t, int64(2), cp.Offset)
	require.NotEmpty(t, cp.LastError)

	chunks.failAfter = 0
	report, err := svc.Run(ctx, model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	require.Equal(t, model.MigrationStatusCompleted, report.Status)
	require.Equal(t, int64(4), report.Processed)
	require.Equal(t, 4, chunks.total())
}

func TestMigrateDimensionMismatchFails(t *testing.T) {
	store := newMemFileStore()
	seedVectorDump(store, vectorLine("aaa", 0, 5))
	svc := NewMigrateService(newMemCheckpoints(), newMemDocs(), newMemChunks(), store, 3, 10)

	_, err := svc.Run(context.Background(), model.MigrationSourceLegacyVectors)
	require.ErrorIs(t, err, errors.ErrMigration)
}

func TestMigrateAnalyzeDoesNotMutate(t *testing.T) {
	store := newMemFileStore()
	seedVectorDump(store, vectorLine("aaa", 0, 3), vectorLine("aaa", 1, 3))
	checkpoints := newMemCheckpoints()
	docs := newMemDocs()
	chunks := newMemChunks()
	svc := NewMigrateService(checkpoints, docs, chunks, store, 3, 10)

	report, err := svc.Analyze(context.Background(), model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, int64(2), report.Total)
	require.Equal(t, int64(2), report.Remaining)
	require.Equal(t, model.MigrationStatusPending, report.Status)
	require.Zero(t, docs.upserts)
	require.Zero(t, chunks.appends)

	cp, err := checkpoints.Get(context.Background(), model.MigrationSourceLegacyVectors)
	require.NoError(t, err)
	require.Equal(t, model.MigrationStatusPending, cp.Status)
	require.Zero(t, cp.Offset)
}

func TestMigrateCatalogStoresBodies(t *testing.T) {
	store := newMemFileStore()
	store.files["legacy_catalog.jsonl"] = []byte(
		`{"content_hash":"ccc","display_name":"Runbook","source_type":"web","source_url":"https://wiki/runbook","body":"# Runbook\ncontents"}` + "\n" +
			`{"content_hash":"ddd","display_name":"Ticket 42","source_type":"ticket","ticket_id":"T-42"}` + "\n")
	docs := newMemDocs()
	svc := NewMigrateService(newMemCheckpoints(), docs, newMemChunks(), store, 3, 10)

	report, err := svc.Run(context.Background(), model.MigrationSourceLegacyCatalog)
	require.NoError(t, err)
	require.Equal(t, int64(2), report.Processed)

	runbook := docs.byHash["ccc"]
	require.NotNil(t, runbook)
	require.Equal(t, "bodies/ccc", runbook.Location)
	require.Equal(t, []byte("# Runbook\ncontents"), store.files["bodies/ccc"])

	ticket := docs.byHash["ddd"]
	require.NotNil(t, ticket)
	require.Empty(t, ticket.Location)
	require.Equal(t, "T-42", ticket.TicketID)
}

func TestMigrateConcurrentRunRejected(t *testing.T) {
	store := newMemFileStore()
	seedVectorDump(store, vectorLine("aaa", 0, 3))
	checkpoints := newMemCheckpoints()
	checkpoints.locked[model.MigrationSourceLegacyVectors] = true
	svc := NewMigrateService(checkpoints, newMemDocs(), newMemChunks(), store, 3, 10)

	_, err := svc.Run(context.Background(), model.MigrationSourceLegacyVectors)
	require.ErrorIs(t, err, errors.ErrMigration)
}

func TestMigrateUnknownSourceRejected(t *testing.T) {
	svc := NewMigrateService(newMemCheckpoints(), newMemDocs(), newMemChunks(), newMemFileStore(), 3, 10)
	_, err := svc.Run(context.Background(), "legacy_bookmarks")
	require.ErrorIs(t, err, errors.ErrInvalid)
}
