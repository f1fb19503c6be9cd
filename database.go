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


// Package docrag ingests documents into a vector index and answers
// questions grounded on the retrieved chunks.
package docrag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/bedrock"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/ai/openai"
	"github.com/poiesic/docrag/chunking"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/embedding"
	"github.com/poiesic/docrag/generation"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/redaction"
	"github.com/poiesic/docrag/reindex"
	"github.com/poiesic/docrag/search"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/poiesic/docrag/storage/redis"
	"github.com/poiesic/docrag/storage/sqlite"
)

// Database wires the stores, providers and pipelines behind the
// operations exposed to callers.
type Database struct {
	stores   *badger.Stores
	index    storage.VectorIndex
	cache    *redis.Cache
	provider ai.AIProvider
	embedder *embedding.Generator
	engine   *generation.Engine
	pipeline *ingestion.Pipeline
	answerer *search.Answerer
	config   *config.Config
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	config   *config.Config
	aiConfig *ai.Config
	provider ai.AIProvider
	inMemory bool
}

// WithConfig uses cfg for every section. Storage.Path is ignored in favor
// of the path given to NewDatabase.
func WithConfig(cfg *config.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.config = cfg
	}
}

// WithAIConfig overrides the provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an already constructed provider. The Database takes
// ownership and closes it.
func WithProvider(p ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = p
	}
}

// InMemory keeps every store in memory. Useful for tests.
func InMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewDatabase opens (or creates) the database at filePath.
func NewDatabase(ctx context.Context, filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.config
	if cfg == nil {
		cfg = config.Default()
	}
	aiConfig := options.aiConfig
	if aiConfig == nil {
		aiConfig = cfg.AIConfig()
	}
	if err := aiConfig.Validate(); err != nil {
		return nil, err
	}

	db := &Database{
		config: cfg,
		logger: slog.Default().With("component", "database"),
	}
	if err := db.open(ctx, filePath, aiConfig, options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) open(ctx context.Context, filePath string, aiConfig *ai.Config, options *databaseOptions) error {
	var err error
	dim := aiConfig.Dimensions

	// Open backend
	if options.inMemory {
		db.stores, err = badger.NewMemoryStores(dim)
	} else {
		db.stores, err = badger.OpenStores(filePath, dim)
	}
	if err != nil {
		return err
	}
	db.index = db.stores.Index
	if db.config.Storage.Index == config.IndexSQLite {
		if db.index, err = sqlite.Open(db.config.Storage.SQLitePath, dim); err != nil {
			return err
		}
	}

	if db.config.Cache.Enabled() {
		db.cache, err = redis.New(ctx, redis.Options{
			Addr:     db.config.Cache.Addr,
			Password: db.config.Cache.Password,
			DB:       db.config.Cache.DB,
			TTL:      db.config.Cache.TTL,
		})
		if err != nil {
			return err
		}
	}

	// Create AI provider with configured settings
	db.provider = options.provider
	if db.provider == nil {
		if db.provider, err = newProvider(ctx, aiConfig); err != nil {
			return err
		}
	}

	embedOpts := []embedding.Option{embedding.WithRetryPolicy(aiConfig.Retry)}
	if db.cache != nil {
		embedOpts = append(embedOpts, embedding.WithCache(db.cache))
	}
	if db.embedder, err = embedding.New(db.provider.Embedder(), dim, embedOpts...); err != nil {
		return err
	}
	if db.engine, err = generation.New(db.provider.Completer(), generation.WithRetryPolicy(aiConfig.Retry)); err != nil {
		return err
	}

	chunker, err := chunking.New(chunking.WithSize(db.config.Chunking.Size, db.config.Chunking.Overlap))
	if err != nil {
		return err
	}
	ingestOpts := []ingestion.Option{
		ingestion.WithChunker(chunker),
		ingestion.WithMaxSize(db.config.Ingestion.MaxSize),
	}
	if db.config.Ingestion.Workers > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(db.config.Ingestion.Workers))
	}
	if db.config.Ingestion.DisableRedaction {
		ingestOpts = append(ingestOpts, ingestion.WithRedactor(redaction.Nop{}))
	}
	db.pipeline, err = ingestion.NewPipeline(db.index, db.stores.Documents, db.stores.Blobs, db.embedder, ingestOpts...)
	if err != nil {
		return err
	}

	db.answerer, err = search.NewAnswerer(db.index, db.embedder, db.engine,
		search.WithMaxResults(db.config.Search.MaxResults),
		search.WithThreshold(db.config.Search.Threshold))
	return err
}

func newProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	case ai.ProviderBedrock:
		return bedrock.NewProvider(ctx, cfg)
	case ai.ProviderMock:
		return mock.NewProvider(cfg), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// Close releases every resource. It waits for submitted ingests first.
func (db *Database) Close() error {
	if db.pipeline != nil {
		db.pipeline.Wait()
		db.pipeline.Release()
	}
	if db.embedder != nil {
		db.embedder.Release()
	}

	var errs []error
	// Close AI provider first
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
		}
	}
	if db.cache != nil {
		if err := db.cache.Close(); err != nil {
			db.logger.Error("error closing embedding cache", "err", err)
		}
	}
	if db.index != nil && db.stores != nil && db.index != db.stores.Index {
		if err := db.index.Close(); err != nil {
			db.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if db.stores != nil {
		if err := db.stores.Close(); err != nil {
			db.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the effective configuration.
func (db *Database) Config() *config.Config {
	return db.config
}

// Index returns the vector index in use.
func (db *Database) Index() storage.VectorIndex {
	return db.index
}

// Documents returns the document repository.
func (db *Database) Documents() storage.DocumentRepository {
	return db.stores.Documents
}

// Pipeline returns the ingestion pipeline.
func (db *Database) Pipeline() *ingestion.Pipeline {
	return db.pipeline
}

// Ingest extracts, redacts, chunks, embeds and indexes one document.
func (db *Database) Ingest(ctx context.Context, req ingestion.Request) (*core.IngestResult, error) {
	return db.pipeline.Ingest(ctx, req)
}

// Submit ingests req in the background and reports to done.
func (db *Database) Submit(ctx context.Context, req ingestion.Request, done func(*core.IngestResult, error)) error {
	return db.pipeline.Submit(ctx, req, done)
}

// Wait blocks until every submitted ingest has finished.
func (db *Database) Wait() {
	db.pipeline.Wait()
}

// Answer answers q from the indexed documents. Failures produce an
// apology rather than an error.
func (db *Database) Answer(ctx context.Context, q search.Query) core.Answer {
	return db.answerer.Answer(ctx, q)
}

// StreamAnswer is the streaming form of Answer.
func (db *Database) StreamAnswer(ctx context.Context, q search.Query) iter.Seq[core.StreamEvent] {
	return db.answerer.StreamAnswer(ctx, q)
}

// Search returns the chunks most similar to q without generating an answer.
func (db *Database) Search(ctx context.Context, q search.Query) ([]core.SearchResult, error) {
	return db.answerer.Search(ctx, q)
}

// DeleteDocument removes a document with its chunks and stored text.
func (db *Database) DeleteDocument(ctx context.Context, id string) (int, error) {
	return db.pipeline.Delete(ctx, id)
}

// GetDocument returns the stored record for id.
func (db *Database) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	return db.stores.Documents.GetDocument(ctx, id)
}

// ListDocuments returns every stored document record.
func (db *Database) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	return db.stores.Documents.ListDocuments(ctx)
}

// DownloadDocument returns the stored redacted text of a document.
func (db *Database) DownloadDocument(ctx context.Context, id string) (*storage.Blob, error) {
	doc, err := db.stores.Documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.StorageKey == "" {
		return nil, fmt.Errorf("%w: document %s has no stored text", core.ErrNotFound, id)
	}
	return db.stores.Blobs.Get(ctx, doc.StorageKey)
}

// DocumentChunks returns a document's chunks in order.
func (db *Database) DocumentChunks(ctx context.Context, id string) ([]core.Chunk, error) {
	if _, err := db.stores.Documents.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return db.index.DocumentChunks(ctx, id)
}

// Stats reports index-wide chunk and document counts.
func (db *Database) Stats(ctx context.Context) (core.IndexStats, error) {
	return db.index.Stats(ctx)
}

// Health probes the index, the cache and both providers.
func (db *Database) Health(ctx context.Context) []core.HealthStatus {
	statuses := []core.HealthStatus{probe("index", db.index.Ping(ctx))}
	if db.cache != nil {
		statuses = append(statuses, probe("cache", db.cache.Ping(ctx)))
	}
	return append(statuses, db.embedder.Health(ctx), db.engine.Health(ctx))
}

func probe(component string, err error) core.HealthStatus {
	status := core.HealthStatus{Component: component, Healthy: err == nil}
	if err != nil {
		status.Detail = err.Error()
	}
	return status
}

// Summarize summarizes a processed document in at most maxWords words.
// A non-positive maxWords selects generation.DefaultSummaryWords.
func (db *Database) Summarize(ctx context.Context, id string, maxWords int) (string, error) {
	chunks, err := db.DocumentChunks(ctx, id)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: document %s has no chunks", core.ErrNotFound, id)
	}
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	return db.engine.Summarize(ctx, contents, maxWords)
}

// ExtractTopics lists up to count topics of a document's stored text.
func (db *Database) ExtractTopics(ctx context.Context, id string, count int) ([]string, error) {
	blob, err := db.DownloadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(blob.Data))
	if text == "" {
		return nil, core.ErrEmptyText
	}
	return db.engine.ExtractTopics(ctx, text, count)
}

// Reindex reprocesses stored documents from their redacted text.
func (db *Database) Reindex(ctx context.Context, cfg *reindex.Config, opts ...reindex.Option) (*reindex.Summary, error) {
	r, err := reindex.NewReindexer(db.stores.Documents, db.pipeline, cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Release()
	return r.Run(ctx)
}
