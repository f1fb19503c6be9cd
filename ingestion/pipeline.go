package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/chunking"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/extraction"
	"github.com/poiesic/docrag/redaction"
	"github.com/poiesic/docrag/storage"
)

// DefaultMaxSize is the largest accepted upload, in bytes.
const DefaultMaxSize = 10 << 20

// Request describes one document to ingest.
type Request struct {
	DocumentID string            // generated when empty
	Filename   string            // display name; its extension names the blob
	MIMEType   string            // detected from Filename and Data when empty
	Data       []byte            // raw document bytes
	Metadata   map[string]string // copied onto every chunk
}

func resultFor(doc *core.Document, ids []core.ID) *core.IngestResult {
	return &core.IngestResult{
		DocumentID:   doc.ID,
		Status:       doc.Status,
		ChunkCount:   doc.ChunkCount,
		StorageKey:   doc.StorageKey,
		ChunkIDs:     ids,
		TextLength:   doc.TextLength,
		ErrorMessage: doc.ErrorMessage,
	}
}

// BlobKey returns the storage key of a document's redacted text.
func BlobKey(documentID, extension string) string {
	return "documents/" + documentID + "/redacted" + extension
}

// Pipeline orchestrates document ingestion.
type Pipeline struct {
	index      storage.VectorIndex
	documents  storage.DocumentRepository
	blobs      storage.BlobStore
	embedder   Embedder
	extractors *extraction.Registry
	redactor   redaction.Redactor
	chunker    *chunking.Chunker
	normalize  bool
	maxSize    int
	pool       *ants.Pool
	wg         sync.WaitGroup
	proc       *processor
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of documents Submit processes concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(chunker *chunking.Chunker) Option {
	return func(p *Pipeline) error {
		if chunker == nil {
			return fmt.Errorf("%w: chunker cannot be nil", core.ErrValidation)
		}
		p.chunker = chunker
		return nil
	}
}

// WithExtractors replaces the default extraction registry.
func WithExtractors(registry *extraction.Registry) Option {
	return func(p *Pipeline) error {
		if registry == nil {
			return fmt.Errorf("%w: extraction registry cannot be nil", core.ErrValidation)
		}
		p.extractors = registry
		return nil
	}
}

// WithRedactor sets the redactor. Default is redaction.New().
// A nil redactor disables redaction.
func WithRedactor(r redaction.Redactor) Option {
	return func(p *Pipeline) error {
		if r == nil {
			r = redaction.Nop{}
		}
		p.redactor = r
		return nil
	}
}

// WithMaxSize sets the upload size limit in bytes.
func WithMaxSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: max size must be positive", core.ErrValidation)
		}
		p.maxSize = n
		return nil
	}
}

// WithNormalize controls whether chunk vectors are L2-normalized. Default true.
func WithNormalize(normalize bool) Option {
	return func(p *Pipeline) error {
		p.normalize = normalize
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	index storage.VectorIndex,
	documents storage.DocumentRepository,
	blobs storage.BlobStore,
	embedder Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	chunker, err := chunking.New()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		index:      index,
		documents:  documents,
		blobs:      blobs,
		embedder:   embedder,
		extractors: extraction.NewRegistry(),
		redactor:   redaction.New(),
		chunker:    chunker,
		normalize:  true,
		maxSize:    DefaultMaxSize,
		logger:     slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.pool == nil {
		poolSize := runtime.NumCPU() / 2
		if poolSize < 1 {
			poolSize = 1
		}
		if p.pool, err = ants.NewPool(poolSize); err != nil {
			return nil, err
		}
	}

	// Built after options so it sees the final configuration.
	p.proc = &processor{
		index:     p.index,
		embedder:  p.embedder,
		chunker:   p.chunker,
		normalize: p.normalize,
		logger:    p.logger.With("stage", "index"),
	}
	return p, nil
}

// Release stops the worker pool. The pipeline should not be used afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Extractors returns the extraction registry in use.
func (p *Pipeline) Extractors() *extraction.Registry {
	return p.extractors
}

// Ingest processes one document synchronously.
//
// Unsupported MIME types return core.ErrUnsupportedType before anything is
// stored. Documents without extractable text are marked failed and return
// core.ErrEmptyText. Any other stage failure is recorded on the document and
// Ingest returns the failed result with a nil error. Errors persisting the
// document record itself are returned.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*core.IngestResult, error) {
	id := req.DocumentID
	if id == "" {
		id = uuid.NewString()
	}
	mimeType := extraction.NormalizeMIME(req.MIMEType)
	if mimeType == "" {
		mimeType = extraction.DetectMIME(req.Filename, req.Data)
	}
	if !p.extractors.Supports(mimeType) {
		p.logger.Warn("rejecting unsupported document", "document", id, "mime_type", mimeType)
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedType, mimeType)
	}

	name := req.Filename
	if name == "" {
		name = id
	}
	doc := &core.Document{
		ID:       id,
		Name:     name,
		MIMEType: mimeType,
		Status:   core.StatusPending,
	}
	// Reingesting keeps the original creation time.
	if existing, err := p.documents.GetDocument(ctx, id); err == nil {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.setStatus(ctx, doc, core.StatusProcessing); err != nil {
		return nil, err
	}

	if len(req.Data) > p.maxSize {
		return p.fail(ctx, doc, fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, len(req.Data), p.maxSize))
	}

	text, err := p.extractors.Extract(ctx, mimeType, req.Data)
	if err != nil {
		return p.fail(ctx, doc, fmt.Errorf("extracting text: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		res, failErr := p.fail(ctx, doc, core.ErrEmptyText)
		if failErr != nil {
			return nil, failErr
		}
		return res, fmt.Errorf("%w: document %s", core.ErrEmptyText, id)
	}

	text = p.redactor.Redact(ctx, text)

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if ext == "" {
		ext = p.extractors.Extension(mimeType)
	}
	key := BlobKey(id, ext)
	err = p.blobs.Put(ctx, key, []byte(text), "text/plain; charset=utf-8", map[string]string{
		core.MetaDocumentID: id,
		"original_filename": name,
		core.MetaMIMEType:   mimeType,
		"redacted":          "true",
	})
	if err != nil {
		return p.fail(ctx, doc, fmt.Errorf("storing redacted text: %w", err))
	}
	doc.StorageKey = key
	doc.TextLength = utf8.RuneCountInString(text)

	return p.indexText(ctx, doc, text, req.Metadata)
}

// Reprocess re-chunks and re-embeds a stored document from its blob.
func (p *Pipeline) Reprocess(ctx context.Context, documentID string) (*core.IngestResult, error) {
	doc, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.StorageKey == "" {
		return nil, fmt.Errorf("%w: document %s has no stored text", core.ErrNotFound, documentID)
	}
	blob, err := p.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}
	if err := p.setStatus(ctx, doc, core.StatusProcessing); err != nil {
		return nil, err
	}
	text := string(blob.Data)
	doc.TextLength = utf8.RuneCountInString(text)
	return p.indexText(ctx, doc, text, nil)
}

func (p *Pipeline) indexText(ctx context.Context, doc *core.Document, text string, extra map[string]string) (*core.IngestResult, error) {
	metadata := maps.Clone(extra)
	if metadata == nil {
		metadata = make(map[string]string, 3)
	}
	metadata[core.MetaDocumentName] = doc.Name
	metadata[core.MetaMIMEType] = doc.MIMEType
	metadata[core.MetaStorageKey] = doc.StorageKey

	ids, err := p.proc.process(ctx, doc.ID, text, metadata)
	if err != nil {
		return p.fail(ctx, doc, err)
	}

	doc.ChunkCount = len(ids)
	doc.Status = core.StatusProcessed
	doc.ErrorMessage = ""
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	p.logger.Info("document processed", "document", doc.ID, "chunks", len(ids))
	return resultFor(doc, ids), nil
}

func (p *Pipeline) setStatus(ctx context.Context, doc *core.Document, status core.DocumentStatus) error {
	if err := p.documents.UpdateStatus(ctx, doc.ID, status, ""); err != nil {
		return err
	}
	doc.Status = status
	return nil
}

// fail records cause on the document and drops any chunks it still has, so a
// failed document is never searchable.
func (p *Pipeline) fail(ctx context.Context, doc *core.Document, cause error) (*core.IngestResult, error) {
	p.logger.Error("document processing failed", "document", doc.ID, "err", cause)

	// Record the failure even if the caller's context is done.
	ctx = context.WithoutCancel(ctx)
	if _, err := p.index.Delete(ctx, doc.ID); err != nil {
		p.logger.Warn("failed to drop chunks of failed document", "document", doc.ID, "err", err)
	}

	doc.Status = core.StatusFailed
	doc.ErrorMessage = cause.Error()
	doc.ChunkCount = 0
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	return resultFor(doc, nil), nil
}

// Submit queues req on the worker pool. done, when non-nil, receives the
// outcome from the worker goroutine.
func (p *Pipeline) Submit(ctx context.Context, req Request, done func(*core.IngestResult, error)) error {
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		res, err := p.Ingest(ctx, req)
		if done != nil {
			done(res, err)
		}
	})
	if err != nil {
		p.wg.Done()
		return err
	}
	return nil
}

// Wait blocks until every submitted ingest has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Delete removes a document's chunks, blob and record, returning the number
// of chunks removed. Unknown documents return core.ErrNotFound.
func (p *Pipeline) Delete(ctx context.Context, documentID string) (int, error) {
	doc, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	n, err := p.index.Delete(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if doc.StorageKey != "" {
		if err := p.blobs.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, core.ErrNotFound) {
			return n, err
		}
	}
	if err := p.documents.DeleteDocument(ctx, documentID); err != nil {
		return n, err
	}
	p.logger.Info("deleted document", "document", documentID, "chunks", n)
	return n, nil
}
