package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (storage.DocumentRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &DocumentRepository{backend: backend}, nil
}

// Close is a no-op; the backend is owned by the caller.
func (r *DocumentRepository) Close() error {
	return nil
}

// SaveDocument creates or replaces doc.
func (r *DocumentRepository) SaveDocument(ctx context.Context, doc *core.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyDocumentID)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeDocumentKey(doc.ID), storage.MarshalDocument(doc))
	})
	return storageErr(err)
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return doc, nil
}

func readDocument(tx *badger.Txn, id string) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

// ListDocuments returns every document ordered by creation time.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	docs := []*core.Document{}
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				doc, err := storage.UnmarshalDocument(val)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// UpdateStatus sets the status of an existing document.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status core.DocumentStatus, errorMessage string) error {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		doc.Status = status
		doc.ErrorMessage = ""
		if status == core.StatusFailed {
			doc.ErrorMessage = errorMessage
		}
		doc.UpdatedAt = time.Now().UTC()
		return tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc))
	})
	return storageErr(err)
}

// DeleteDocument removes the document record.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeDocumentKey(id))
	})
	return storageErr(err)
}
