package search

import (
	"context"
	"errors"
	"iter"
	"math"
	"strings"
	"testing"

	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/generation"
	"github.com/poiesic/docrag/storage"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

var unitX = []float32{1, 0, 0}

func vectorWithSimilarity(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s)), 0}
}

// fixedEmbedder embeds every query as the same vector.
type fixedEmbedder struct {
	vector []float32
	err    error
}

func (f *fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

// stubGenerator answers with canned text and records what it was asked.
type stubGenerator struct {
	answer    string
	err       error
	fragments []string
	streamErr error
	lastReq   generation.Request
	yielded   int
}

func (g *stubGenerator) Generate(_ context.Context, req generation.Request) (string, error) {
	g.lastReq = req
	return g.answer, g.err
}

func (g *stubGenerator) Stream(_ context.Context, req generation.Request) iter.Seq2[string, error] {
	g.lastReq = req
	return func(yield func(string, error) bool) {
		for _, f := range g.fragments {
			g.yielded++
			if !yield(f, nil) {
				return
			}
		}
		if g.streamErr != nil {
			yield("", g.streamErr)
		}
	}
}

// failingIndex fails every search.
type failingIndex struct {
	storage.VectorIndex
}

func (failingIndex) Search(context.Context, []float32, core.SearchOptions) ([]core.SearchResult, error) {
	return nil, core.ErrStorage
}

// recordingMonitor keeps the order of stage callbacks.
type recordingMonitor struct {
	events []string
	final  core.Answer
}

func (m *recordingMonitor) Start(string)                            { m.events = append(m.events, "start") }
func (m *recordingMonitor) AfterEmbedding([]float32)                { m.events = append(m.events, "embedding") }
func (m *recordingMonitor) AfterSearch([]core.SearchResult)         { m.events = append(m.events, "search") }
func (m *recordingMonitor) AfterContextAssembly(generation.Request) { m.events = append(m.events, "context") }
func (m *recordingMonitor) Failed(stage Stage, _ error) {
	m.events = append(m.events, "failed:"+string(stage))
}
func (m *recordingMonitor) Finish(a core.Answer) {
	m.events = append(m.events, "finish")
	m.final = a
}

// seedIndex stores chunks of five documents at known similarities to unitX.
func seedIndex(t *testing.T) storage.VectorIndex {
	t.Helper()
	stores, err := badger.NewMemoryStores(testDim)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	ctx := context.Background()

	docs := []struct {
		id     string
		name   string
		chunks []string
		scores []float64
	}{
		{"a", "alpha.txt", []string{"a0", "a1"}, []float64{0.95, 0.85}},
		{"b", "beta.txt", []string{"b0"}, []float64{0.80}},
		{"c", "", []string{"c0"}, []float64{0.75}},
		{"d", "delta.txt", []string{"d0"}, []float64{0.72}},
		{"e", "echo.txt", []string{"e0"}, []float64{0.30}},
	}
	for _, d := range docs {
		vectors := make([][]float32, len(d.scores))
		for i, s := range d.scores {
			vectors[i] = vectorWithSimilarity(s)
		}
		var meta map[string]string
		if d.name != "" {
			meta = map[string]string{core.MetaDocumentName: d.name}
		}
		_, err := stores.Index.Upsert(ctx, d.id, d.chunks, vectors, meta)
		require.NoError(t, err)
	}
	return stores.Index
}

func newTestAnswerer(t *testing.T, index storage.VectorIndex, gen Generator, opts ...Option) *Answerer {
	t.Helper()
	a, err := NewAnswerer(index, &fixedEmbedder{vector: unitX}, gen, opts...)
	require.NoError(t, err)
	return a
}

func TestNewAnswerer_RequiresCollaborators(t *testing.T) {
	index := seedIndex(t)
	_, err := NewAnswerer(nil, &fixedEmbedder{}, &stubGenerator{})
	assert.ErrorIs(t, err, ErrIndexRequired)
	_, err = NewAnswerer(index, nil, &stubGenerator{})
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewAnswerer(index, &fixedEmbedder{}, nil)
	assert.ErrorIs(t, err, ErrGeneratorRequired)
	_, err = NewAnswerer(index, &fixedEmbedder{}, &stubGenerator{}, WithMaxResults(0))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestAnswer_UsesContextAndDedupsSources(t *testing.T) {
	gen := &stubGenerator{answer: "grounded answer"}
	a := newTestAnswerer(t, seedIndex(t), gen)
	history := []core.ChatTurn{{Role: core.RoleUser, Content: "earlier"}}

	answer := a.Answer(context.Background(), Query{Text: "what?", History: history})
	assert.Equal(t, "grounded answer", answer.Answer)
	assert.True(t, answer.ContextUsed)

	require.Len(t, gen.lastReq.Context, 5)
	assert.Equal(t, "a0", gen.lastReq.Context[0].Content)
	assert.Equal(t, "d0", gen.lastReq.Context[4].Content)
	assert.Equal(t, history, gen.lastReq.History)

	require.Len(t, answer.Sources, MaxSources)
	assert.Equal(t, "a", answer.Sources[0].DocumentID)
	assert.Equal(t, "alpha.txt", answer.Sources[0].DocumentName)
	assert.InDelta(t, 0.95, answer.Sources[0].Score, 1e-5)
	assert.Equal(t, "b", answer.Sources[1].DocumentID)
	assert.Equal(t, "c", answer.Sources[2].DocumentID)
	assert.Equal(t, "Unknown", answer.Sources[2].DocumentName)
}

func TestAnswer_NoRelevantContext(t *testing.T) {
	gen := &stubGenerator{answer: "no idea"}
	a := newTestAnswerer(t, seedIndex(t), gen)

	answer := a.Answer(context.Background(), Query{Text: "q", Threshold: core.Threshold(0.99)})
	assert.Equal(t, "no idea", answer.Answer)
	assert.False(t, answer.ContextUsed)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, gen.lastReq.Context)
}

func TestAnswer_QueryOverrides(t *testing.T) {
	gen := &stubGenerator{answer: "x"}
	a := newTestAnswerer(t, seedIndex(t), gen, WithMaxResults(2))

	a.Answer(context.Background(), Query{Text: "q"})
	assert.Len(t, gen.lastReq.Context, 2)

	a.Answer(context.Background(), Query{Text: "q", MaxResults: 10, Threshold: core.Threshold(0.9)})
	assert.Len(t, gen.lastReq.Context, 1)

	a.Answer(context.Background(), Query{Text: "q", MaxResults: 10, DocumentIDs: []string{"b", "e"}})
	require.Len(t, gen.lastReq.Context, 1)
	assert.Equal(t, "b", gen.lastReq.Context[0].DocumentID)

	b := newTestAnswerer(t, seedIndex(t), gen, WithThreshold(nil))
	b.Answer(context.Background(), Query{Text: "q", MaxResults: 10})
	assert.Len(t, gen.lastReq.Context, 6)
}

func TestAnswer_FailuresApologize(t *testing.T) {
	index := seedIndex(t)
	tests := []struct {
		name     string
		index    storage.VectorIndex
		embedder QueryEmbedder
		gen      Generator
		query    string
		failed   string
	}{
		{"empty query", index, &fixedEmbedder{vector: unitX}, &stubGenerator{}, "   ", "failed:embedding"},
		{"embedder", index, &fixedEmbedder{err: core.ErrProviderUnavailable}, &stubGenerator{}, "q", "failed:embedding"},
		{"wrong dimension", index, &fixedEmbedder{vector: []float32{1}}, &stubGenerator{}, "q", "failed:search"},
		{"index", failingIndex{VectorIndex: index}, &fixedEmbedder{vector: unitX}, &stubGenerator{}, "q", "failed:search"},
		{"generator", index, &fixedEmbedder{vector: unitX}, &stubGenerator{err: context.Canceled}, "q", "failed:generation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAnswerer(tt.index, tt.embedder, tt.gen)
			require.NoError(t, err)
			monitor := &recordingMonitor{}

			answer := a.AnswerWithMonitor(context.Background(), Query{Text: tt.query}, monitor)
			assert.Equal(t, Apology, answer.Answer)
			assert.NotNil(t, answer.Sources)
			assert.Empty(t, answer.Sources)
			assert.False(t, answer.ContextUsed)
			assert.Contains(t, monitor.events, tt.failed)
			assert.Equal(t, "finish", monitor.events[len(monitor.events)-1])
		})
	}
}

func TestAnswerWithMonitor_Stages(t *testing.T) {
	a := newTestAnswerer(t, seedIndex(t), &stubGenerator{answer: "ok"})
	monitor := &recordingMonitor{}

	answer := a.AnswerWithMonitor(context.Background(), Query{Text: "q"}, monitor)
	assert.Equal(t, []string{"start", "embedding", "search", "context", "finish"}, monitor.events)
	assert.Equal(t, answer, monitor.final)
}

func TestAnswer_WithGenerationEngine(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.Response = "The answer is 42."
	engine, err := generation.New(completer)
	require.NoError(t, err)

	a := newTestAnswerer(t, seedIndex(t), engine)
	answer := a.Answer(context.Background(), Query{Text: "what is the answer?"})
	assert.Equal(t, "The answer is 42.", answer.Answer)
	assert.Contains(t, completer.LastPrompt(), "alpha.txt")
	assert.Contains(t, completer.LastPrompt(), "what is the answer?")
}

func collectEvents(seq iter.Seq[core.StreamEvent]) []core.StreamEvent {
	var events []core.StreamEvent
	for e := range seq {
		events = append(events, e)
	}
	return events
}

func TestStreamAnswer(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"Hello ", "there"}}
	a := newTestAnswerer(t, seedIndex(t), gen)

	events := collectEvents(a.StreamAnswer(context.Background(), Query{Text: "q"}))
	require.Len(t, events, 3)
	assert.Equal(t, core.StreamEvent{Type: core.EventText, Text: "Hello "}, events[0])
	assert.Equal(t, core.EventText, events[1].Type)
	assert.Equal(t, core.EventComplete, events[2].Type)
	require.Len(t, events[2].Sources, MaxSources)
	assert.Equal(t, "a", events[2].Sources[0].DocumentID)
}

func TestStreamAnswer_Errors(t *testing.T) {
	t.Run("retrieval", func(t *testing.T) {
		a := newTestAnswerer(t, seedIndex(t), &stubGenerator{fragments: []string{"x"}})
		events := collectEvents(a.StreamAnswer(context.Background(), Query{Text: ""}))
		require.Len(t, events, 1)
		assert.Equal(t, core.EventError, events[0].Type)
		assert.Contains(t, events[0].Err, core.ErrEmptyQuery.Error())
	})

	t.Run("mid stream", func(t *testing.T) {
		gen := &stubGenerator{fragments: []string{"partial"}, streamErr: errors.New("connection reset")}
		a := newTestAnswerer(t, seedIndex(t), gen)
		events := collectEvents(a.StreamAnswer(context.Background(), Query{Text: "q"}))
		require.Len(t, events, 2)
		assert.Equal(t, core.EventText, events[0].Type)
		assert.Equal(t, core.StreamEvent{Type: core.EventError, Err: "connection reset"}, events[1])
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		a := newTestAnswerer(t, seedIndex(t), &stubGenerator{fragments: []string{"a", "b"}})
		var events []core.StreamEvent
		for e := range a.StreamAnswer(ctx, Query{Text: "q"}) {
			events = append(events, e)
			cancel()
		}
		last := events[len(events)-1]
		assert.Equal(t, core.EventError, last.Type)
		for _, e := range events {
			assert.NotEqual(t, core.EventComplete, e.Type)
		}
	})
}

func TestStreamAnswer_ConsumerBreakStopsGeneration(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"a", "b", "c", "d"}}
	a := newTestAnswerer(t, seedIndex(t), gen)

	for e := range a.StreamAnswer(context.Background(), Query{Text: "q"}) {
		if e.Text == "b" {
			break
		}
	}
	assert.Equal(t, 2, gen.yielded)
}

func TestSearch(t *testing.T) {
	a := newTestAnswerer(t, seedIndex(t), &stubGenerator{})

	results, err := a.Search(context.Background(), Query{Text: "q", MaxResults: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a0", "a1", "b0"}, []string{results[0].Content, results[1].Content, results[2].Content})

	_, err = a.Search(context.Background(), Query{Text: ""})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSources(t *testing.T) {
	results := []core.SearchResult{
		{DocumentID: "x", ChunkID: 1, Score: 0.9},
		{DocumentID: "x", ChunkID: 2, Score: 0.8},
		{DocumentID: "y", ChunkID: 3, Score: 0.7, Metadata: map[string]string{core.MetaDocumentName: "y.md"}},
	}
	sources := Sources(results)
	require.Len(t, sources, 2)
	assert.Equal(t, core.ID(1), sources[0].ChunkID)
	assert.Equal(t, "Unknown", sources[0].DocumentName)
	assert.Equal(t, "y.md", sources[1].DocumentName)

	assert.Empty(t, Sources(nil))
	assert.NotNil(t, Sources(nil))
	assert.True(t, strings.HasPrefix(Apology, "I'm sorry"))
}
