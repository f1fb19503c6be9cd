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


package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of documents read per batch
	BatchSize int

	// Workers is the number of documents reprocessed concurrently
	Workers int

	// Statuses restricts the run to documents in these states; empty means all
	Statuses []core.DocumentStatus
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: DefaultBatchSize,
		Workers:   max(runtime.NumCPU()/2, 1),
	}
}

// Summary reports the outcome of a run.
type Summary struct {
	Total     int
	Processed int
	Failed    int
	Failures  map[string]string // document ID to error message
	Elapsed   time.Duration
}

// Reindexer reprocesses every stored document.
type Reindexer struct {
	documents storage.DocumentRepository
	config    *Config
	pool      *ants.Pool
	processor *BatchProcessor
	progress  Progress
	logger    *slog.Logger
}

// Option configures a Reindexer.
type Option func(*Reindexer)

// WithProgress reports progress to p.
func WithProgress(p Progress) Option {
	return func(r *Reindexer) {
		r.progress = p
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reindexer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReindexer creates a reindexer. Call Release when done.
func NewReindexer(documents storage.DocumentRepository, reprocessor Reprocessor, config *Config, opts ...Option) (*Reindexer, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if reprocessor == nil {
		return nil, ErrReprocessorRequired
	}
	if config == nil {
		config = DefaultConfig()
	}

	pool, err := ants.NewPool(max(config.Workers, 1))
	if err != nil {
		return nil, err
	}

	r := &Reindexer{
		documents: documents,
		config:    config,
		pool:      pool,
		processor: NewBatchProcessor(reprocessor, pool),
		logger:    slog.Default().With("component", "reindexer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Release stops the worker pool.
func (r *Reindexer) Release() {
	r.pool.Release()
}

// Run reprocesses every matching document. Per-document failures are
// counted in the summary; only listing errors and cancellation end the run
// early.
func (r *Reindexer) Run(ctx context.Context) (*Summary, error) {
	iterator := NewDocumentIterator(r.documents, r.config.BatchSize, r.config.Statuses...)
	total, err := iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	summary := &Summary{Total: total, Failures: map[string]string{}}
	if total == 0 {
		r.logger.Info("no documents to reindex")
		return summary, nil
	}

	r.logger.Info("starting reindex", "documents", total, "batch_size", r.config.BatchSize)
	start := time.Now()
	if r.progress != nil {
		r.progress.Start(total)
	}

	err = iterator.ForEach(ctx, func(docs []*core.Document) error {
		processed, failed := 0, 0
		for _, o := range r.processor.Process(ctx, docs) {
			if o.Succeeded() {
				processed++
				continue
			}
			failed++
			summary.Failures[o.DocumentID] = failureMessage(o)
		}
		summary.Processed += processed
		summary.Failed += failed
		if r.progress != nil {
			r.progress.Add(processed, failed)
		}
		return nil
	})
	summary.Elapsed = time.Since(start)
	if r.progress != nil {
		r.progress.Finish()
	}
	if err != nil {
		return summary, err
	}

	r.logger.Info("reindex complete",
		"processed", summary.Processed, "failed", summary.Failed, "elapsed", summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

func failureMessage(o Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if o.Result != nil && o.Result.ErrorMessage != "" {
		return o.Result.ErrorMessage
	}
	return "document was not processed"
}
