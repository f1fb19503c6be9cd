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

package extraction

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/docrag/core"
)

// Supported MIME types.
const (
	MIMEPlain    = "text/plain"
	MIMEMarkdown = "text/markdown"
	MIMEHTML     = "text/html"
	MIMEPDF      = "application/pdf"
	MIMEDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

type entry struct {
	extractor Extractor
	extension string
}

// Registry maps MIME types to extractors. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns a registry with every built-in extractor registered.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	r.Register(MIMEPlain, ".txt", ExtractorFunc(extractText))
	r.Register(MIMEMarkdown, ".md", ExtractorFunc(extractText))
	r.Register(MIMEHTML, ".html", ExtractorFunc(extractHTML))
	r.Register(MIMEPDF, ".pdf", ExtractorFunc(extractPDF))
	r.Register(MIMEDocx, ".docx", ExtractorFunc(extractDocx))
	return r
}

// Register installs ext as the extractor for mimeType, replacing any
// existing registration.
func (r *Registry) Register(mimeType, extension string, ext Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[NormalizeMIME(mimeType)] = entry{extractor: ext, extension: extension}
}

// Supports reports whether mimeType has a registered extractor.
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.lookup(mimeType)
	return ok
}

// Types lists the registered MIME types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Extension returns the canonical file extension for mimeType, or "".
func (r *Registry) Extension(mimeType string) string {
	e, _ := r.lookup(mimeType)
	return e.extension
}

// Extract runs the extractor registered for mimeType.
func (r *Registry) Extract(ctx context.Context, mimeType string, data []byte) (string, error) {
	e, ok := r.lookup(mimeType)
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedType, mimeType)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.extractor.Extract(ctx, data)
}

func (r *Registry) lookup(mimeType string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[NormalizeMIME(mimeType)]
	return e, ok
}

// NormalizeMIME lowercases mimeType and strips parameters such as charset.
func NormalizeMIME(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

var extensionTypes = map[string]string{
	".txt":      MIMEPlain,
	".text":     MIMEPlain,
	".md":       MIMEMarkdown,
	".markdown": MIMEMarkdown,
	".htm":      MIMEHTML,
	".html":     MIMEHTML,
	".pdf":      MIMEPDF,
	".docx":     MIMEDocx,
}

// DetectMIME guesses a MIME type from the file name, falling back to
// content sniffing.
func DetectMIME(filename string, data []byte) string {
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return NormalizeMIME(http.DetectContentType(data))
}
