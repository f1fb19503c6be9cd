package docrag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/ai/mock"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/reindex"
	"github.com/poiesic/docrag/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AI.Provider = string(ai.ProviderMock)
	cfg.AI.Dimensions = testDim
	return cfg
}

func newTestDatabase(t *testing.T, opts ...DatabaseOption) *Database {
	t.Helper()
	opts = append([]DatabaseOption{WithConfig(testConfig()), InMemory()}, opts...)
	db, err := NewDatabase(context.Background(), "", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// sentences builds n characters of period-terminated sentences.
func sentences(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("The quarterly report covers revenue. ")
	}
	return b.String()[:n]
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(context.Background(), tmpDir, WithConfig(testConfig()))
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify components are initialized
		assert.NotNil(t, db.Index())
		assert.NotNil(t, db.Documents())
		assert.NotNil(t, db.Pipeline())
		assert.NotNil(t, db.logger)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(context.Background(), tmpFile, WithConfig(testConfig()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid ai config", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithProvider("nope"))
		db, err := NewDatabase(context.Background(), "", InMemory(), WithAIConfig(cfg))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_SQLiteIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Storage.Index = config.IndexSQLite
	cfg.Storage.SQLitePath = filepath.Join(dir, "index.db")

	db, err := NewDatabase(context.Background(), filepath.Join(dir, "data"), WithConfig(cfg))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	result, err := db.Ingest(ctx, ingestion.Request{DocumentID: "doc", Filename: "a.txt", Data: []byte(sentences(1500))})
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, result.Status)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, result.ChunkCount, stats.ChunkCount)
	assert.FileExists(t, cfg.Storage.SQLitePath)
}

func TestDatabase_EndToEnd(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	text := sentences(2300)
	result, err := db.Ingest(ctx, ingestion.Request{
		DocumentID: "report",
		Filename:   "report.txt",
		MIMEType:   "text/plain",
		Data:       []byte(text),
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, result.Status)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, "documents/report/redacted.txt", result.StorageKey)

	doc, err := db.GetDocument(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, doc.Status)

	chunks, err := db.DocumentChunks(ctx, "report")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// A chunk's own text embeds to the same vector, so it scores 1.
	q := search.Query{Text: chunks[1].Content}
	results, err := db.Search(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	answer := db.Answer(ctx, q)
	assert.Equal(t, "mock answer", answer.Answer)
	assert.True(t, answer.ContextUsed)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "report", answer.Sources[0].DocumentID)
	assert.Equal(t, "report.txt", answer.Sources[0].DocumentName)

	var streamed strings.Builder
	var last core.StreamEvent
	for ev := range db.StreamAnswer(ctx, q) {
		if ev.Type == core.EventText {
			streamed.WriteString(ev.Text)
		}
		last = ev
	}
	assert.Equal(t, "mock answer", streamed.String())
	assert.Equal(t, core.EventComplete, last.Type)
	assert.Len(t, last.Sources, 1)

	blob, err := db.DownloadDocument(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, text, string(blob.Data))

	removed, err := db.DeleteDocument(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = db.GetDocument(ctx, "report")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = db.DownloadDocument(ctx, "report")
	assert.ErrorIs(t, err, core.ErrNotFound)

	answer = db.Answer(ctx, q)
	assert.False(t, answer.ContextUsed)
	assert.Empty(t, answer.Sources)
}

func TestDatabase_AnswerFailureApologizes(t *testing.T) {
	db := newTestDatabase(t)
	answer := db.Answer(context.Background(), search.Query{Text: "   "})
	assert.Equal(t, search.Apology, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.False(t, answer.ContextUsed)
}

func TestDatabase_SummarizeAndTopics(t *testing.T) {
	completer := mock.NewMockCompleter()
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedderWithDim(testDim), completer)
	db := newTestDatabase(t, WithProvider(provider))
	ctx := context.Background()

	_, err := db.Ingest(ctx, ingestion.Request{DocumentID: "doc", Filename: "notes.md", Data: []byte(sentences(1200))})
	require.NoError(t, err)

	completer.Response = "A short summary."
	summary, err := db.Summarize(ctx, "doc", 50)
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", summary)
	assert.Contains(t, completer.LastPrompt(), "quarterly report")

	completer.Response = "Revenue, Reporting, Finance"
	topics, err := db.ExtractTopics(ctx, "doc", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Revenue", "Reporting"}, topics)

	_, err = db.Summarize(ctx, "missing", 0)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = db.ExtractTopics(ctx, "missing", 0)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDatabase_ListAndSubmit(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		err := db.Submit(ctx, ingestion.Request{Filename: name, Data: []byte(sentences(300))}, func(r *core.IngestResult, err error) {
			assert.NoError(t, err)
			assert.Equal(t, core.StatusProcessed, r.Status)
		})
		require.NoError(t, err)
	}
	db.Wait()

	docs, err := db.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestDatabase_Reindex(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, err := db.Ingest(ctx, ingestion.Request{DocumentID: "doc", Filename: "a.txt", Data: []byte(sentences(2300))})
	require.NoError(t, err)

	summary, err := db.Reindex(ctx, &reindex.Config{BatchSize: 10, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Processed)

	chunks, err := db.DocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestDatabase_Health(t *testing.T) {
	db := newTestDatabase(t)

	statuses := db.Health(context.Background())
	require.Len(t, statuses, 3)
	components := make([]string, len(statuses))
	for i, s := range statuses {
		components[i] = s.Component
		assert.True(t, s.Healthy, s.Component)
	}
	assert.Equal(t, []string{"index", "embedding", "generation"}, components)
}

func TestDatabase_Close(t *testing.T) {
	db, err := NewDatabase(context.Background(), t.TempDir(), WithConfig(testConfig()))
	require.NoError(t, err)
	require.NotNil(t, db)

	// Close the database
	err = db.Close()
	assert.NoError(t, err)
}
