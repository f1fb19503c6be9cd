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

// Package chunking splits extracted document text into overlapping,
// sentence-aware segments.
package chunking

import (
	"log/slog"
	"strings"

	"github.com/poiesic/docrag/core"
)

const (
	// DefaultChunkSize is the default chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is the default number of characters shared by neighbouring chunks.
	DefaultOverlap = 200
)

// separators are tried in order; the first one present in the window wins.
var separators = [][]rune{
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune("\n\n"),
}

// Chunker holds a chunk size and overlap.
type Chunker struct {
	size    int
	overlap int
	logger  *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the chunk size and overlap in characters.
func WithSize(size, overlap int) Option {
	return func(c *Chunker) {
		c.size = size
		c.overlap = overlap
	}
}

// WithLogger sets the chunker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		c.logger = logger
	}
}

// New creates a Chunker. Invalid size/overlap pairs are rejected.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
		logger:  slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := core.ValidateChunkParams(c.size, c.overlap); err != nil {
		return nil, err
	}
	return c, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks text with the configured parameters.
func (c *Chunker) Split(text string) []string {
	// New validated the parameters, so Chunk cannot fail here.
	chunks, _ := Chunk(text, c.size, c.overlap)
	c.logger.Debug("chunked text", "characters", len(text), "chunks", len(chunks))
	return chunks
}

// Chunk splits text into chunks of at most chunkSize characters, each sharing
// up to overlap characters with its predecessor. Chunk i of the result has
// index i. The output depends only on the inputs.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if err := core.ValidateChunkParams(chunkSize, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	n := len(runes)
	chunks := []string{}

	start := 0
	for start < n {
		end := start + chunkSize
		if end < n {
			if snapped, ok := boundary(runes, start, end); ok {
				end = snapped
			}
		} else {
			end = n
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}

		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// boundary returns the position just past the last occurrence of the first
// separator that appears entirely inside runes[start:end].
func boundary(runes []rune, start, end int) (int, bool) {
	for _, sep := range separators {
		if idx := lastIndex(runes[start:end], sep); idx >= 0 {
			return start + idx + len(sep), true
		}
	}
	return 0, false
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
