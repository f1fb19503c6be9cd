package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/embedding"
	"github.com/poiesic/docrag/extraction"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// statusRecorder captures every status a document passes through.
type statusRecorder struct {
	storage.DocumentRepository
	mu       sync.Mutex
	statuses map[string][]core.DocumentStatus
}

func (r *statusRecorder) record(id string, status core.DocumentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.statuses[id]
	if len(list) == 0 || list[len(list)-1] != status {
		r.statuses[id] = append(list, status)
	}
}

func (r *statusRecorder) SaveDocument(ctx context.Context, doc *core.Document) error {
	r.record(doc.ID, doc.Status)
	return r.DocumentRepository.SaveDocument(ctx, doc)
}

func (r *statusRecorder) UpdateStatus(ctx context.Context, id string, status core.DocumentStatus, msg string) error {
	r.record(id, status)
	return r.DocumentRepository.UpdateStatus(ctx, id, status, msg)
}

// failingIndex rejects every upsert.
type failingIndex struct {
	storage.VectorIndex
}

func (failingIndex) Upsert(context.Context, string, []string, [][]float32, map[string]string) ([]core.ID, error) {
	return nil, fmt.Errorf("%w: disk full", core.ErrStorage)
}

type fixture struct {
	stores    *badger.Stores
	documents *statusRecorder
	pipeline  *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	stores, err := badger.NewMemoryStores(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return newFixtureWithIndex(t, stores, stores.Index, opts...)
}

func newFixtureWithIndex(t *testing.T, stores *badger.Stores, index storage.VectorIndex, opts ...Option) *fixture {
	t.Helper()
	gen, err := embedding.New(mock.NewMockEmbedderWithDim(testDim), testDim, embedding.WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(gen.Release)

	docs := &statusRecorder{DocumentRepository: stores.Documents, statuses: map[string][]core.DocumentStatus{}}
	p, err := NewPipeline(index, docs, stores.Blobs, gen, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return &fixture{stores: stores, documents: docs, pipeline: p}
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	stores, err := badger.NewMemoryStores(testDim)
	require.NoError(t, err)
	defer stores.Close()
	gen, err := embedding.New(mock.NewMockEmbedderWithDim(testDim), testDim)
	require.NoError(t, err)
	defer gen.Release()

	_, err = NewPipeline(nil, stores.Documents, stores.Blobs, gen)
	assert.ErrorIs(t, err, ErrIndexRequired)
	_, err = NewPipeline(stores.Index, nil, stores.Blobs, gen)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewPipeline(stores.Index, stores.Documents, nil, gen)
	assert.ErrorIs(t, err, ErrBlobStoreRequired)
	_, err = NewPipeline(stores.Index, stores.Documents, stores.Blobs, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewPipeline(stores.Index, stores.Documents, stores.Blobs, gen, WithMaxSize(0))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestIngest_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := strings.Repeat("abcdefghij", 230)

	res, err := f.pipeline.Ingest(ctx, Request{
		DocumentID: "doc-1",
		Filename:   "notes.txt",
		MIMEType:   extraction.MIMEPlain,
		Data:       []byte(text),
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, res.Status)
	assert.Equal(t, 3, res.ChunkCount)
	assert.Equal(t, "documents/doc-1/redacted.txt", res.StorageKey)
	assert.Empty(t, res.ErrorMessage)
	assert.Equal(t, 2300, res.TextLength)
	require.Len(t, res.ChunkIDs, 3)
	assert.Equal(t, core.ChunkID("doc-1", 2), res.ChunkIDs[2])

	chunks, err := f.stores.Index.DocumentChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Len(t, c.Vector, testDim)
		assert.Equal(t, "notes.txt", c.Metadata[core.MetaDocumentName])
		assert.Equal(t, res.StorageKey, c.Metadata[core.MetaStorageKey])
	}
	assert.Equal(t, chunks[0].Content[800:], chunks[1].Content[:200])

	doc, err := f.stores.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 2300, doc.TextLength)
	assert.Equal(t, []core.DocumentStatus{core.StatusPending, core.StatusProcessing, core.StatusProcessed},
		f.documents.statuses["doc-1"])

	n, err := f.pipeline.Delete(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.stores.Documents.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.stores.Blobs.Get(ctx, res.StorageKey)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.pipeline.Delete(ctx, "doc-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIngest_ReingestReplacesChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.pipeline.Ingest(ctx, Request{DocumentID: "doc", Filename: "a.txt", Data: []byte(strings.Repeat("word ", 600))})
	require.NoError(t, err)
	require.Greater(t, first.ChunkCount, 1)
	original, err := f.stores.Documents.GetDocument(ctx, "doc")
	require.NoError(t, err)

	second, err := f.pipeline.Ingest(ctx, Request{DocumentID: "doc", Filename: "a.txt", Data: []byte("short text")})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ChunkCount)

	chunks, err := f.stores.Index.DocumentChunks(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Content)

	doc, err := f.stores.Documents.GetDocument(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, original.CreatedAt.Equal(doc.CreatedAt))
}

func TestIngest_UnsupportedType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, Request{DocumentID: "img", Filename: "photo.png", MIMEType: "image/png", Data: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, core.ErrUnsupportedType)

	_, err = f.stores.Documents.GetDocument(ctx, "img")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIngest_EmptyText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, Request{DocumentID: "blank", Filename: "blank.txt", Data: []byte("  \n\t ")})
	assert.ErrorIs(t, err, core.ErrEmptyText)
	require.NotNil(t, res)
	assert.Equal(t, core.StatusFailed, res.Status)

	doc, err := f.stores.Documents.GetDocument(ctx, "blank")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, doc.Status)
	assert.Equal(t, core.ErrEmptyText.Error(), doc.ErrorMessage)
}

func TestIngest_StageFailuresMarkFailed(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, WithMaxSize(16))
		res, err := f.pipeline.Ingest(context.Background(), Request{DocumentID: "big", Filename: "big.txt", Data: []byte(strings.Repeat("x", 17))})
		require.NoError(t, err)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Contains(t, res.ErrorMessage, ErrTooLarge.Error())
	})

	t.Run("extraction", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.pipeline.Ingest(context.Background(), Request{DocumentID: "bad", Filename: "bad.docx", Data: []byte("not a zip")})
		require.NoError(t, err)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Contains(t, res.ErrorMessage, extraction.ErrMalformed.Error())
	})

	t.Run("storage", func(t *testing.T) {
		stores, err := badger.NewMemoryStores(testDim)
		require.NoError(t, err)
		defer stores.Close()
		ctx := context.Background()

		_, err = stores.Index.Upsert(ctx, "doc", []string{"stale"}, [][]float32{mock.DeterministicVector("stale", testDim)}, nil)
		require.NoError(t, err)

		f := newFixtureWithIndex(t, stores, failingIndex{VectorIndex: stores.Index})
		res, err := f.pipeline.Ingest(ctx, Request{DocumentID: "doc", Filename: "doc.txt", Data: []byte("fresh content")})
		require.NoError(t, err)
		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Contains(t, res.ErrorMessage, "disk full")
		assert.Zero(t, res.ChunkCount)

		chunks, err := stores.Index.DocumentChunks(ctx, "doc")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestIngest_RedactsBeforeStoring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, Request{DocumentID: "pii", Filename: "notes.md", Data: []byte("Contact jane@example.com for details.")})
	require.NoError(t, err)
	assert.Equal(t, "documents/pii/redacted.md", res.StorageKey)

	blob, err := f.stores.Blobs.Get(ctx, res.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "Contact [REDACTED EMAIL] for details.", string(blob.Data))
	assert.Equal(t, "true", blob.Metadata["redacted"])
	assert.Equal(t, extraction.MIMEMarkdown, blob.Metadata[core.MetaMIMEType])

	chunks, err := f.stores.Index.DocumentChunks(ctx, "pii")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Content, "jane@example.com")
}

func TestIngest_WithoutRedaction(t *testing.T) {
	f := newFixture(t, WithRedactor(nil))
	res, err := f.pipeline.Ingest(context.Background(), Request{DocumentID: "raw", Filename: "raw.txt", Data: []byte("jane@example.com")})
	require.NoError(t, err)

	blob, err := f.stores.Blobs.Get(context.Background(), res.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", string(blob.Data))
}

func TestIngest_GeneratesDocumentID(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline.Ingest(context.Background(), Request{Filename: "x.txt", Data: []byte("hello")})
	require.NoError(t, err)
	_, err = uuid.Parse(res.DocumentID)
	assert.NoError(t, err)
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Ingest(ctx, Request{DocumentID: "doc", Filename: "doc.txt", Data: []byte(strings.Repeat("sentence one. ", 150))})
	require.NoError(t, err)

	again, err := f.pipeline.Reprocess(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, again.Status)
	assert.Equal(t, res.ChunkCount, again.ChunkCount)
	assert.Equal(t, res.StorageKey, again.StorageKey)

	_, err = f.pipeline.Reprocess(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSubmit_ConcurrentDocuments(t *testing.T) {
	f := newFixture(t, WithPoolSize(3))
	ctx := context.Background()

	var (
		mu      sync.Mutex
		results = map[string]*core.IngestResult{}
		errs    []error
	)
	for i := range 6 {
		id := fmt.Sprintf("doc-%d", i)
		err := f.pipeline.Submit(ctx, Request{DocumentID: id, Filename: id + ".txt", Data: []byte("content of " + id)},
			func(res *core.IngestResult, err error) {
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				results[res.DocumentID] = res
			})
		require.NoError(t, err)
	}
	f.pipeline.Wait()

	assert.Empty(t, errs)
	require.Len(t, results, 6)
	for _, res := range results {
		assert.Equal(t, core.StatusProcessed, res.Status)
		assert.Equal(t, 1, res.ChunkCount)
	}

	stats, err := f.stores.Index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.DocumentCount)
}

func TestSubmit_ReportsTypedErrors(t *testing.T) {
	f := newFixture(t)
	var got error
	require.NoError(t, f.pipeline.Submit(context.Background(),
		Request{DocumentID: "x", MIMEType: "application/zip", Data: []byte("PK")},
		func(_ *core.IngestResult, err error) { got = err }))
	f.pipeline.Wait()
	assert.True(t, errors.Is(got, core.ErrUnsupportedType))
}
