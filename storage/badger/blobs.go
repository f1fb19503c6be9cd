package badger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// BlobStore implements storage.BlobStore for BadgerDB.
type BlobStore struct {
	backend *Backend
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a new BlobStore.
func NewBlobStore(backend *Backend) (storage.BlobStore, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &BlobStore{backend: backend}, nil
}

// Close is a no-op; the backend is owned by the caller.
func (s *BlobStore) Close() error {
	return nil
}

// Put stores data under key.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	if key == "" {
		return fmt.Errorf("%w: blob key cannot be empty", core.ErrValidation)
	}
	blob := &storage.Blob{
		Key:         key,
		ContentType: contentType,
		Data:        data,
		Metadata:    maps.Clone(metadata),
		CreatedAt:   time.Now().UTC(),
	}
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeBlobKey(key), storage.MarshalBlob(blob))
	})
	return storageErr(err)
}

// Get retrieves the object under key.
func (s *BlobStore) Get(ctx context.Context, key string) (*storage.Blob, error) {
	var blob *storage.Blob
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: blob %s", core.ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			blob, err = storage.UnmarshalBlob(val)
			return err
		})
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return blob, nil
}

// Delete removes the object under key.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeBlobKey(key))
	})
	return storageErr(err)
}
