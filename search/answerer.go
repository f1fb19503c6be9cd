package search

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/generation"
	"github.com/poiesic/docrag/storage"
)

const (
	// DefaultMaxResults is how many chunks are retrieved per query.
	DefaultMaxResults = 5
	// DefaultThreshold is the minimum similarity for a chunk to be used.
	DefaultThreshold float32 = 0.7
	// MaxSources caps the sources attached to an answer.
	MaxSources = 3
)

// Apology is the answer returned when a query cannot be processed.
const Apology = "I'm sorry, but I encountered an error while processing your query. Please try again or rephrase your question."

// QueryEmbedder embeds query text. *embedding.Generator satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces answers. *generation.Engine satisfies it.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (string, error)
	Stream(ctx context.Context, req generation.Request) iter.Seq2[string, error]
}

// Query is a question plus retrieval parameters. Zero values select the
// Answerer's defaults.
type Query struct {
	Text        string
	History     []core.ChatTurn
	MaxResults  int
	Threshold   *float32
	DocumentIDs []string
}

// Answerer retrieves context for queries and generates grounded answers.
type Answerer struct {
	index      storage.VectorIndex
	embedder   QueryEmbedder
	generator  Generator
	maxResults int
	threshold  *float32
	logger     *slog.Logger
}

// Option configures an Answerer.
type Option func(*Answerer) error

// WithMaxResults sets the default number of chunks retrieved per query.
func WithMaxResults(k int) Option {
	return func(a *Answerer) error {
		if k <= 0 {
			return fmt.Errorf("%w: max results must be positive, got %d", core.ErrValidation, k)
		}
		a.maxResults = k
		return nil
	}
}

// WithThreshold sets the default similarity threshold. A nil threshold
// disables filtering.
func WithThreshold(threshold *float32) Option {
	return func(a *Answerer) error {
		a.threshold = threshold
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Answerer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAnswerer creates a new answerer.
func NewAnswerer(index storage.VectorIndex, embedder QueryEmbedder, generator Generator, opts ...Option) (*Answerer, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	a := &Answerer{
		index:      index,
		embedder:   embedder,
		generator:  generator,
		maxResults: DefaultMaxResults,
		threshold:  core.Threshold(DefaultThreshold),
		logger:     slog.Default().With("component", "answerer"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Answerer) options(q Query) core.SearchOptions {
	opts := core.SearchOptions{
		K:           q.MaxResults,
		DocumentIDs: q.DocumentIDs,
		Threshold:   q.Threshold,
	}
	if opts.K <= 0 {
		opts.K = a.maxResults
	}
	if opts.Threshold == nil {
		opts.Threshold = a.threshold
	}
	return opts
}

// Search embeds the query and returns the matching chunks, best first.
func (a *Answerer) Search(ctx context.Context, q Query) ([]core.SearchResult, error) {
	return a.retrieve(ctx, q, &noopMonitor{})
}

func (a *Answerer) retrieve(ctx context.Context, q Query, monitor AnswerMonitor) ([]core.SearchResult, error) {
	if err := core.ValidateQuery(q.Text); err != nil {
		monitor.Failed(StageEmbedding, err)
		return nil, err
	}

	vector, err := a.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		a.logger.Error("error generating embedding for query", "err", err)
		monitor.Failed(StageEmbedding, err)
		return nil, err
	}
	monitor.AfterEmbedding(vector)

	results, err := a.index.Search(ctx, vector, a.options(q))
	if err != nil {
		a.logger.Error("error querying for similar chunks", "err", err)
		monitor.Failed(StageSearch, err)
		return nil, err
	}
	monitor.AfterSearch(results)
	return results, nil
}

func request(q Query, results []core.SearchResult) generation.Request {
	return generation.Request{
		Query:   q.Text,
		Context: results,
		History: q.History,
	}
}

// Answer answers q from the indexed documents.
func (a *Answerer) Answer(ctx context.Context, q Query) core.Answer {
	return a.AnswerWithMonitor(ctx, q, nil)
}

// AnswerWithMonitor answers q, reporting each stage to monitor.
// It never fails; errors produce the Apology answer.
func (a *Answerer) AnswerWithMonitor(ctx context.Context, q Query, monitor AnswerMonitor) core.Answer {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(q.Text)

	results, err := a.retrieve(ctx, q, monitor)
	if err != nil {
		return a.apologize(monitor)
	}

	req := request(q, results)
	monitor.AfterContextAssembly(req)

	text, err := a.generator.Generate(ctx, req)
	if err != nil {
		a.logger.Error("error generating answer", "err", err)
		monitor.Failed(StageGeneration, err)
		return a.apologize(monitor)
	}

	answer := core.Answer{
		Answer:      text,
		Sources:     Sources(results),
		ContextUsed: len(results) > 0,
	}
	monitor.Finish(answer)
	return answer
}

func (a *Answerer) apologize(monitor AnswerMonitor) core.Answer {
	answer := core.Answer{Answer: Apology, Sources: []core.Source{}}
	monitor.Finish(answer)
	return answer
}

// StreamAnswer streams the answer to q as text events followed by exactly
// one complete event carrying the sources, or one error event. Breaking out
// of the loop stops generation.
func (a *Answerer) StreamAnswer(ctx context.Context, q Query) iter.Seq[core.StreamEvent] {
	return func(yield func(core.StreamEvent) bool) {
		results, err := a.retrieve(ctx, q, &noopMonitor{})
		if err != nil {
			yield(errorEvent(err))
			return
		}

		for text, err := range a.generator.Stream(ctx, request(q, results)) {
			if err != nil {
				a.logger.Error("streaming answer failed", "err", err)
				yield(errorEvent(err))
				return
			}
			if !yield(core.StreamEvent{Type: core.EventText, Text: text}) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield(errorEvent(err))
			return
		}
		yield(core.StreamEvent{Type: core.EventComplete, Sources: Sources(results)})
	}
}

func errorEvent(err error) core.StreamEvent {
	return core.StreamEvent{Type: core.EventError, Err: err.Error()}
}

// Sources de-duplicates results by document, keeping the first (highest
// scoring) chunk of each, and caps the list at MaxSources.
func Sources(results []core.SearchResult) []core.Source {
	sources := make([]core.Source, 0, min(len(results), MaxSources))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if len(sources) == MaxSources {
			break
		}
		if _, dup := seen[r.DocumentID]; dup {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		sources = append(sources, core.Source{
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName(),
			ChunkID:      r.ChunkID,
			Score:        r.Score,
		})
	}
	return sources
}
