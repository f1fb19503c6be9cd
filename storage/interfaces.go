package storage

import (
	"context"
	"time"

	"github.com/poiesic/docrag/core"
)

// VectorIndex stores chunk embeddings and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Upsert replaces every chunk of documentID with chunks and their vectors
	// in a single transaction. len(chunks) must equal len(vectors) and every
	// vector must have Dimension() components, otherwise core.ErrValidation.
	// metadata is copied onto every chunk. Returns the chunk IDs in order.
	Upsert(ctx context.Context, documentID string, chunks []string, vectors [][]float32, metadata map[string]string) ([]core.ID, error)

	// Search returns up to opts.K chunks ordered by descending similarity,
	// ties broken by document ID then chunk index. Chunks scoring strictly
	// below opts.Threshold are excluded.
	Search(ctx context.Context, query []float32, opts core.SearchOptions) ([]core.SearchResult, error)

	// Delete removes every chunk of documentID and returns how many were removed.
	// Deleting an unknown document removes nothing and is not an error.
	Delete(ctx context.Context, documentID string) (int, error)

	// DocumentChunks returns the chunks of documentID ordered by index.
	DocumentChunks(ctx context.Context, documentID string) ([]core.Chunk, error)

	// UpdateChunkMetadata merges metadata into the chunk's existing metadata.
	// Returns core.ErrNotFound if the chunk doesn't exist.
	UpdateChunkMetadata(ctx context.Context, chunkID core.ID, metadata map[string]string) error

	// Stats summarizes the index contents.
	Stats(ctx context.Context) (core.IndexStats, error)

	// Ping checks that the index is reachable.
	Ping(ctx context.Context) error

	// Dimension returns the required vector length.
	Dimension() int

	// Close releases resources held by the index.
	Close() error
}

// DocumentRepository persists document records and their processing status.
type DocumentRepository interface {
	// SaveDocument creates or replaces doc. CreatedAt is set when zero and
	// UpdatedAt is always refreshed.
	SaveDocument(ctx context.Context, doc *core.Document) error

	// GetDocument returns core.ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// ListDocuments returns every document, oldest first.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// UpdateStatus sets the status and error message of an existing document.
	// Returns core.ErrNotFound if the document doesn't exist.
	UpdateStatus(ctx context.Context, id string, status core.DocumentStatus, errorMessage string) error

	// DeleteDocument removes the document record. Missing documents are ignored.
	DeleteDocument(ctx context.Context, id string) error

	// Close releases resources held by the repository.
	Close() error
}

// Blob is a stored object.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
	Metadata    map[string]string
	CreatedAt   time.Time
}

// BlobStore keeps the redacted source bytes of ingested documents.
type BlobStore interface {
	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error

	// Get returns core.ErrNotFound if no object exists under key.
	Get(ctx context.Context, key string) (*Blob, error)

	// Delete removes the object under key. Missing keys are ignored.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
