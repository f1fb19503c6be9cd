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

package core

import (
	"fmt"
	"strings"
)

// ValidateVector checks that vec has exactly dim components.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: %w: got %d, want %d", ErrValidation, ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

// ValidateBatch validates the arguments of an index upsert.
//
// Validation rules:
//   - documentID must not be empty
//   - chunks and vectors must have the same length
//   - every chunk must have non-blank content
//   - every vector must have exactly dim components
func ValidateBatch(documentID string, chunks []string, vectors [][]float32, dim int) error {
	if documentID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyDocumentID)
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %w: %d chunks, %d vectors", ErrValidation, ErrLengthMismatch, len(chunks), len(vectors))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: %w: index %d", ErrValidation, ErrEmptyChunk, i)
		}
	}
	for i, v := range vectors {
		if err := ValidateVector(v, dim); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	return nil
}

// ValidateQuery rejects blank query text.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyQuery)
	}
	return nil
}

// ValidateChunkParams checks chunk size and overlap, in characters.
func ValidateChunkParams(chunkSize, overlap int) error {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: %w: size=%d overlap=%d", ErrValidation, ErrInvalidChunkParams, chunkSize, overlap)
	}
	return nil
}
