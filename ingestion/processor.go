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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docrag/chunking"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// Embedder produces one vector per text. *embedding.Generator satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error)
}

// processor runs the chunk, embed and upsert stages for one document's text.
type processor struct {
	index     storage.VectorIndex
	embedder  Embedder
	chunker   *chunking.Chunker
	normalize bool
	logger    *slog.Logger
}

// process replaces the indexed chunks of documentID with chunks of text and
// returns the stored chunk IDs in order.
func (p *processor) process(ctx context.Context, documentID string, text string, metadata map[string]string) ([]core.ID, error) {
	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s produced no chunks", core.ErrEmptyText, documentID)
	}

	p.logger.Debug("embedding chunks", "document", documentID, "chunks", len(chunks))
	vectors, err := p.embedder.Embed(ctx, chunks, p.normalize)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %w: %d chunks, %d vectors", core.ErrValidation, core.ErrLengthMismatch, len(chunks), len(vectors))
	}

	ids, err := p.index.Upsert(ctx, documentID, chunks, vectors, metadata)
	if err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}
	p.logger.Info("indexed document", "document", documentID, "chunks", len(ids))
	return ids, nil
}
