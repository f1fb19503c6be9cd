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

import "github.com/poiesic/docrag/storage"

// Stores groups the BadgerDB-backed stores sharing one backend.
type Stores struct {
	Index     storage.VectorIndex
	Documents storage.DocumentRepository
	Blobs     storage.BlobStore
	Backend   *Backend
}

// OpenStores opens (or creates) a database at path and builds every store on it.
// Caller must call Close when done.
func OpenStores(path string, dim int) (*Stores, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStores(backend, dim)
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must call Close when done.
func NewMemoryStores(dim int) (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return newStores(backend, dim)
}

func newStores(backend *Backend, dim int) (*Stores, error) {
	index, err := NewIndex(backend, dim)
	if err != nil {
		backend.Close()
		return nil, err
	}
	documents, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	blobs, err := NewBlobStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &Stores{Index: index, Documents: documents, Blobs: blobs, Backend: backend}, nil
}

// Close closes the stores and then the backend.
func (s *Stores) Close() error {
	s.Index.Close()
	s.Documents.Close()
	s.Blobs.Close()
	return s.Backend.Close()
}
