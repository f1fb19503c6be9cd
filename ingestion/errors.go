package ingestion

import "errors"

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrEmbedderRequired is returned when an embedding generator is not provided.
	ErrEmbedderRequired = errors.New("embedding generator required")

	// ErrTooLarge is recorded on documents whose raw bytes exceed the size limit.
	ErrTooLarge = errors.New("document exceeds maximum size")
)
