package reindex

import (
	"context"
	"slices"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// DefaultBatchSize is the default number of documents handed out per batch.
const DefaultBatchSize = 50

// DocumentIterator walks the reprocessable documents in creation order.
// Documents without stored text are skipped.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
	statuses  []core.DocumentStatus
}

// NewDocumentIterator iterates documents whose status is in statuses, or all
// documents when statuses is empty.
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int, statuses ...core.DocumentStatus) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
		statuses:  statuses,
	}
}

func (it *DocumentIterator) documents(ctx context.Context) ([]*core.Document, error) {
	all, err := it.repo.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(d *core.Document) bool {
		if d.StorageKey == "" {
			return true
		}
		return len(it.statuses) > 0 && !slices.Contains(it.statuses, d.Status)
	}), nil
}

// Count returns how many documents ForEach will visit.
func (it *DocumentIterator) Count(ctx context.Context) (int, error) {
	docs, err := it.documents(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// ForEach calls fn with consecutive batches. It stops at the first error
// from fn or when ctx is done.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docs, err := it.documents(ctx)
	if err != nil {
		return err
	}
	for batch := range slices.Chunk(docs, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
