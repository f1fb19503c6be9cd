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


package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docrag/core"
)

// recordVersion prefixes every encoded record.
const recordVersion uint64 = 1

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return core.ID(v), nil
}

// MarshalChunk serializes a Chunk, including its vector, to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	var s sizer
	encodeChunk(&s, chunk)
	w := writer{bs: make([]byte, s.n)}
	encodeChunk(&w, chunk)
	return w.bs
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	r := reader{bs: data}
	r.version()
	chunk := &core.Chunk{
		ID:         core.ID(r.uint64()),
		DocumentID: r.string(),
		Index:      r.int(),
		Content:    r.string(),
		Vector:     r.vector(),
		Metadata:   r.strings(),
		CreatedAt:  r.time(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return chunk, nil
}

func encodeChunk(e encoder, chunk *core.Chunk) {
	e.uint64(recordVersion)
	e.uint64(uint64(chunk.ID))
	e.string(chunk.DocumentID)
	e.int(chunk.Index)
	e.string(chunk.Content)
	e.vector(chunk.Vector)
	e.strings(chunk.Metadata)
	e.time(chunk.CreatedAt)
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	var s sizer
	encodeDocument(&s, doc)
	w := writer{bs: make([]byte, s.n)}
	encodeDocument(&w, doc)
	return w.bs
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	r := reader{bs: data}
	r.version()
	doc := &core.Document{
		ID:           r.string(),
		Name:         r.string(),
		MIMEType:     r.string(),
		Status:       core.DocumentStatus(r.string()),
		ErrorMessage: r.string(),
		StorageKey:   r.string(),
		ChunkCount:   r.int(),
		TextLength:   r.int(),
		CreatedAt:    r.time(),
		UpdatedAt:    r.time(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return doc, nil
}

func encodeDocument(e encoder, doc *core.Document) {
	e.uint64(recordVersion)
	e.string(doc.ID)
	e.string(doc.Name)
	e.string(doc.MIMEType)
	e.string(string(doc.Status))
	e.string(doc.ErrorMessage)
	e.string(doc.StorageKey)
	e.int(doc.ChunkCount)
	e.int(doc.TextLength)
	e.time(doc.CreatedAt)
	e.time(doc.UpdatedAt)
}

// MarshalBlob serializes a Blob to bytes.
func MarshalBlob(blob *Blob) []byte {
	var s sizer
	encodeBlob(&s, blob)
	w := writer{bs: make([]byte, s.n)}
	encodeBlob(&w, blob)
	return w.bs
}

// UnmarshalBlob deserializes a Blob from bytes.
func UnmarshalBlob(data []byte) (*Blob, error) {
	r := reader{bs: data}
	r.version()
	blob := &Blob{
		Key:         r.string(),
		ContentType: r.string(),
		Data:        r.bytes(),
		Metadata:    r.strings(),
		CreatedAt:   r.time(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return blob, nil
}

func encodeBlob(e encoder, blob *Blob) {
	e.uint64(recordVersion)
	e.string(blob.Key)
	e.string(blob.ContentType)
	e.bytes(blob.Data)
	e.strings(blob.Metadata)
	e.time(blob.CreatedAt)
}

// encoder is implemented by sizer, which measures a record, and writer,
// which fills a buffer of exactly that size.
type encoder interface {
	uint64(v uint64)
	int(v int)
	string(v string)
	bytes(v []byte)
	vector(v []float32)
	strings(m map[string]string)
	time(t time.Time)
}

type sizer struct{ n int }

func (s *sizer) uint64(v uint64) { s.n += varint.Uint64.Size(v) }
func (s *sizer) int(v int)       { s.n += varint.Int.Size(v) }
func (s *sizer) string(v string) { s.n += ord.String.Size(v) }

func (s *sizer) bytes(v []byte) {
	s.int(len(v))
	s.n += len(v)
}

func (s *sizer) vector(v []float32) {
	s.int(len(v))
	for _, f := range v {
		s.n += varint.Uint32.Size(math.Float32bits(f))
	}
}

func (s *sizer) strings(m map[string]string) {
	s.int(len(m))
	for k, v := range m {
		s.string(k)
		s.string(v)
	}
}

func (s *sizer) time(t time.Time) { s.n += varint.Int64.Size(unixNano(t)) }

type writer struct {
	bs []byte
	n  int
}

func (w *writer) uint64(v uint64) { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) int(v int)       { w.n += varint.Int.Marshal(v, w.bs[w.n:]) }
func (w *writer) string(v string) { w.n += ord.String.Marshal(v, w.bs[w.n:]) }

func (w *writer) bytes(v []byte) {
	w.int(len(v))
	w.n += copy(w.bs[w.n:], v)
}

func (w *writer) vector(v []float32) {
	w.int(len(v))
	for _, f := range v {
		w.n += varint.Uint32.Marshal(math.Float32bits(f), w.bs[w.n:])
	}
}

// strings writes map entries in key order so equal maps encode identically.
func (w *writer) strings(m map[string]string) {
	w.int(len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.string(k)
		w.string(m[k])
	}
}

func (w *writer) time(t time.Time) { w.n += varint.Int64.Marshal(unixNano(t), w.bs[w.n:]) }

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// reader decodes fields in order and keeps the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (r *reader) version() {
	if v := r.uint64(); r.err == nil && v != recordVersion {
		r.fail(fmt.Errorf("unknown record version %d", v))
	}
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	r.n += n
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	if err != nil {
		r.fail(err)
	}
	return v
}

func (r *reader) length() int {
	l := r.int()
	if r.err == nil && (l < 0 || l > len(r.bs)-r.n) {
		r.fail(ErrTruncatedData)
		return 0
	}
	return l
}

func (r *reader) bytes() []byte {
	l := r.length()
	if r.err != nil {
		return nil
	}
	out := make([]byte, l)
	r.n += copy(out, r.bs[r.n:r.n+l])
	return out
}

func (r *reader) vector() []float32 {
	l := r.length()
	if r.err != nil || l == 0 {
		return nil
	}
	out := make([]float32, l)
	for i := range out {
		v, n, err := varint.Uint32.Unmarshal(r.bs[r.n:])
		r.n += n
		if err != nil {
			r.fail(err)
			return nil
		}
		out[i] = math.Float32frombits(v)
	}
	return out
}

func (r *reader) strings() map[string]string {
	l := r.length()
	if r.err != nil || l == 0 {
		return nil
	}
	out := make(map[string]string, l)
	for range l {
		k := r.string()
		v := r.string()
		if r.err != nil {
			return nil
		}
		out[k] = v
	}
	return out
}

func (r *reader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	if err != nil {
		r.fail(err)
		return time.Time{}
	}
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func (r *reader) done() error {
	if r.err == nil && r.n != len(r.bs) {
		r.fail(fmt.Errorf("%d trailing bytes", len(r.bs)-r.n))
	}
	return r.err
}
