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

import "errors"

// Error taxonomy shared by every component.
var (
	// ErrValidation indicates malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrProviderThrottled indicates a provider asked the caller to slow down.
	ErrProviderThrottled = errors.New("provider throttled")

	// ErrProviderUnavailable indicates a provider could not be reached or initialized.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStorage indicates a storage layer failure.
	ErrStorage = errors.New("storage error")

	// ErrNotFound indicates a referenced document or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedType indicates a MIME type with no text extractor.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmptyText indicates extraction produced no text.
	ErrEmptyText = errors.New("no text could be extracted")
)

// Validation detail errors, wrapped together with ErrValidation.
var (
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrEmptyDocumentID    = errors.New("document id cannot be empty")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrLengthMismatch     = errors.New("chunks and vectors length mismatch")
	ErrInvalidChunkParams = errors.New("invalid chunk size or overlap")
	ErrEmptyChunk         = errors.New("chunk content cannot be empty")
)
