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


// Package storage provides the storage abstraction layer for docrag.
//
// This package defines the interfaces that decouple persistence from the
// ingestion and answer paths:
//
//   - VectorIndex: chunk embeddings and similarity search
//   - DocumentRepository: document records and processing status
//   - BlobStore: redacted source bytes
//
// The badger subpackage implements all three on an embedded BadgerDB. The
// sqlite subpackage implements VectorIndex on SQLite, and the redis
// subpackage provides an embedding cache.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces to keep callers independent of a
// particular backend:
//
//	index, err := badger.NewIndex(backend, 1536)  // returns storage.VectorIndex
//
// Internal constructors may return concrete types.
//
// # Records
//
// Chunks, documents and blobs are encoded with mus-go varint and ordinal
// primitives (see MarshalChunk, MarshalDocument, MarshalBlob). Every record
// starts with a format version.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
