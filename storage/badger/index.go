// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// Index implements storage.VectorIndex on BadgerDB with brute-force cosine search.
type Index struct {
	backend *Backend
	dim     int
	logger  *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

func newIndex(backend *Backend, dim int) (*Index, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrValidation, dim)
	}
	return &Index{
		backend: backend,
		dim:     dim,
		logger:  slog.Default().With("component", "badger-index"),
	}, nil
}

// NewIndex creates a vector index storing dim-length vectors in backend.
//
// Returns storage.VectorIndex interface (not *Index) to enforce abstraction.
func NewIndex(backend *Backend, dim int) (storage.VectorIndex, error) {
	return newIndex(backend, dim)
}

// Dimension returns the required vector length.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Close is a no-op; the backend is owned by the caller.
func (ix *Index) Close() error {
	return nil
}

// Ping checks the backend.
func (ix *Index) Ping(ctx context.Context) error {
	return storageErr(ix.backend.Ping(ctx))
}

// Upsert replaces all chunks of documentID in one transaction.
func (ix *Index) Upsert(ctx context.Context, documentID string, chunks []string, vectors [][]float32, metadata map[string]string) ([]core.ID, error) {
	if err := core.ValidateBatch(documentID, chunks, vectors, ix.dim); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]*core.Chunk, len(chunks))
	ids := make([]core.ID, len(chunks))
	for i, content := range chunks {
		meta := maps.Clone(metadata)
		if meta == nil {
			meta = make(map[string]string, 1)
		}
		meta[core.MetaDocumentID] = documentID
		records[i] = &core.Chunk{
			ID:         core.ChunkID(documentID, i),
			DocumentID: documentID,
			Index:      i,
			Content:    content,
			Vector:     vectors[i],
			Metadata:   meta,
			CreatedAt:  now,
		}
		ids[i] = records[i].ID
	}

	var removed int
	err := ix.backend.Update(ctx, func(tx *badger.Txn) error {
		var err error
		removed, err = ix.deleteChunks(tx, documentID)
		if err != nil {
			return err
		}
		for _, record := range records {
			key := makeChunkKey(documentID, record.Index)
			if err := tx.Set(key, storage.MarshalChunk(record)); err != nil {
				return err
			}
			if err := tx.Set(makeChunkIDKey(record.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ix.logger.Error("upsert failed", "document", documentID, "chunks", len(chunks), "err", err)
		return nil, storageErr(err)
	}

	ix.logger.Debug("upserted chunks", "document", documentID, "chunks", len(records), "replaced", removed)
	return ids, nil
}

// Delete removes every chunk of documentID.
func (ix *Index) Delete(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyDocumentID)
	}
	var removed int
	err := ix.backend.Update(ctx, func(tx *badger.Txn) error {
		var err error
		removed, err = ix.deleteChunks(tx, documentID)
		return err
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return removed, nil
}

// deleteChunks removes the primary and ID keys of every chunk of documentID.
func (ix *Index) deleteChunks(tx *badger.Txn, documentID string) (int, error) {
	var keys [][]byte
	var ids []core.ID
	err := scanChunks(tx, makeDocumentChunksPrefix(documentID), func(key []byte, chunk *core.Chunk) error {
		keys = append(keys, key)
		ids = append(ids, chunk.ID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := tx.Delete(key); err != nil {
			return 0, err
		}
		if err := tx.Delete(makeChunkIDKey(ids[i])); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// scanChunks decodes every chunk under prefix in key order.
func scanChunks(tx *badger.Txn, prefix []byte, fn func(key []byte, chunk *core.Chunk) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		var chunk *core.Chunk
		err := item.Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), chunk); err != nil {
			return err
		}
	}
	return nil
}

// Search ranks chunks by cosine similarity to query.
func (ix *Index) Search(ctx context.Context, query []float32, opts core.SearchOptions) ([]core.SearchResult, error) {
	if err := core.ValidateVector(query, ix.dim); err != nil {
		return nil, err
	}
	results := []core.SearchResult{}
	if opts.K <= 0 {
		return results, nil
	}

	prefixes := [][]byte{[]byte(chunkPrefix)}
	if len(opts.DocumentIDs) > 0 {
		prefixes = prefixes[:0]
		for _, id := range slices.Compact(slices.Sorted(slices.Values(opts.DocumentIDs))) {
			prefixes = append(prefixes, makeDocumentChunksPrefix(id))
		}
	}

	err := ix.backend.View(ctx, func(tx *badger.Txn) error {
		for _, prefix := range prefixes {
			err := scanChunks(tx, prefix, func(_ []byte, chunk *core.Chunk) error {
				score := core.CosineSimilarity(query, chunk.Vector)
				if opts.Threshold != nil && score < *opts.Threshold {
					return nil
				}
				results = append(results, core.SearchResult{
					ChunkID:    chunk.ID,
					DocumentID: chunk.DocumentID,
					Index:      chunk.Index,
					Content:    chunk.Content,
					Score:      score,
					Metadata:   chunk.Metadata,
				})
				return nil
			})
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}

	storage.SortResults(results)
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// DocumentChunks returns the chunks of documentID ordered by index.
func (ix *Index) DocumentChunks(ctx context.Context, documentID string) ([]core.Chunk, error) {
	chunks := []core.Chunk{}
	err := ix.backend.View(ctx, func(tx *badger.Txn) error {
		return scanChunks(tx, makeDocumentChunksPrefix(documentID), func(_ []byte, chunk *core.Chunk) error {
			chunks = append(chunks, *chunk)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return chunks, nil
}

// UpdateChunkMetadata merges metadata into the chunk's metadata.
func (ix *Index) UpdateChunkMetadata(ctx context.Context, chunkID core.ID, metadata map[string]string) error {
	err := ix.backend.Update(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeChunkIDKey(chunkID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: chunk %s", core.ErrNotFound, chunkID)
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = tx.Get(key)
		if err != nil {
			return err
		}
		var chunk *core.Chunk
		err = item.Value(func(val []byte) error {
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if chunk.Metadata == nil {
			chunk.Metadata = make(map[string]string, len(metadata))
		}
		maps.Copy(chunk.Metadata, metadata)
		return tx.Set(key, storage.MarshalChunk(chunk))
	})
	return storageErr(err)
}

// Stats scans the index and summarizes it.
func (ix *Index) Stats(ctx context.Context) (core.IndexStats, error) {
	var stats core.IndexStats
	documents := make(map[string]struct{})
	var totalLength int

	err := ix.backend.View(ctx, func(tx *badger.Txn) error {
		return scanChunks(tx, []byte(chunkPrefix), func(_ []byte, chunk *core.Chunk) error {
			stats.ChunkCount++
			documents[chunk.DocumentID] = struct{}{}
			totalLength += utf8.RuneCountInString(chunk.Content)
			if chunk.CreatedAt.After(stats.LastIndexed) {
				stats.LastIndexed = chunk.CreatedAt
			}
			return nil
		})
	})
	if err != nil {
		return core.IndexStats{}, storageErr(err)
	}

	stats.DocumentCount = len(documents)
	if stats.ChunkCount > 0 {
		stats.AvgChunkLength = float64(totalLength) / float64(stats.ChunkCount)
	}
	return stats, nil
}
