package reindex

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrReprocessorRequired is returned when a reprocessor is not provided.
	ErrReprocessorRequired = errors.New("reprocessor required")
)
