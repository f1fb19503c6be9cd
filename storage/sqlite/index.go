package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/storage"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schema string

// CurrentSchemaVersion is the version of the embedded schema.
const CurrentSchemaVersion = 1

// Index implements storage.VectorIndex on SQLite. Vectors are stored as
// little-endian float32 blobs and scored in Go.
type Index struct {
	db     *sql.DB
	path   string
	dim    int
	logger *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Open opens or creates an index database at path.
//
// Returns storage.VectorIndex interface (not *Index) to enforce abstraction.
func Open(path string, dim int) (storage.VectorIndex, error) {
	return open(path, dim)
}

func open(path string, dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrValidation, dim)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating directory: %w", core.ErrStorage, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", core.ErrStorage, err)
	}
	// A single connection serializes writers; readers see committed snapshots.
	db.SetMaxOpenConns(1)

	ix := &Index{
		db:     db,
		path:   path,
		dim:    dim,
		logger: slog.Default().With("component", "sqlite-index"),
	}
	if err := ix.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", core.ErrStorage, err)
	}
	return ix, nil
}

func (ix *Index) migrate(ctx context.Context) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)",
		CurrentSchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Path returns the database file path.
func (ix *Index) Path() string {
	return ix.path
}

// Dimension returns the required vector length.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Ping checks the connection.
func (ix *Index) Ping(ctx context.Context) error {
	if err := ix.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return nil
}

// Upsert replaces all chunks of documentID in one transaction.
func (ix *Index) Upsert(ctx context.Context, documentID string, chunks []string, vectors [][]float32, metadata map[string]string) ([]core.ID, error) {
	if err := core.ValidateBatch(documentID, chunks, vectors, ix.dim); err != nil {
		return nil, err
	}

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta[core.MetaDocumentID] = documentID
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)

	ids := make([]core.ID, len(chunks))
	err = ix.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, embedding, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, content := range chunks {
			ids[i] = core.ChunkID(documentID, i)
			if _, err := stmt.ExecContext(ctx, int64(ids[i]), documentID, i, content,
				encodeVector(vectors[i]), string(metaJSON), createdAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ix.logger.Error("upsert failed", "document", documentID, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return ids, nil
}

func (ix *Index) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes every chunk of documentID.
func (ix *Index) Delete(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyDocumentID)
	}
	res, err := ix.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return int(n), nil
}

const selectChunks = `SELECT id, document_id, chunk_index, content, embedding, metadata, created_at FROM chunks`

// Search ranks chunks by cosine similarity to query.
func (ix *Index) Search(ctx context.Context, query []float32, opts core.SearchOptions) ([]core.SearchResult, error) {
	if err := core.ValidateVector(query, ix.dim); err != nil {
		return nil, err
	}
	results := []core.SearchResult{}
	if opts.K <= 0 {
		return results, nil
	}

	q := selectChunks
	var args []any
	if len(opts.DocumentIDs) > 0 {
		q += " WHERE document_id IN (?" + strings.Repeat(", ?", len(opts.DocumentIDs)-1) + ")"
		for _, id := range opts.DocumentIDs {
			args = append(args, id)
		}
	}

	err := ix.scan(ctx, q, args, func(chunk *core.Chunk) {
		score := core.CosineSimilarity(query, chunk.Vector)
		if opts.Threshold != nil && score < *opts.Threshold {
			return
		}
		results = append(results, core.SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Index:      chunk.Index,
			Content:    chunk.Content,
			Score:      score,
			Metadata:   chunk.Metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	storage.SortResults(results)
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// DocumentChunks returns the chunks of documentID ordered by index.
func (ix *Index) DocumentChunks(ctx context.Context, documentID string) ([]core.Chunk, error) {
	chunks := []core.Chunk{}
	err := ix.scan(ctx, selectChunks+" WHERE document_id = ? ORDER BY chunk_index", []any{documentID}, func(chunk *core.Chunk) {
		chunks = append(chunks, *chunk)
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (ix *Index) scan(ctx context.Context, query string, args []any, fn func(chunk *core.Chunk)) error {
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        int64
			chunk     core.Chunk
			embedding []byte
			metaJSON  string
			createdAt string
		)
		if err := rows.Scan(&id, &chunk.DocumentID, &chunk.Index, &chunk.Content, &embedding, &metaJSON, &createdAt); err != nil {
			return fmt.Errorf("%w: %w", core.ErrStorage, err)
		}
		chunk.ID = core.ID(id)
		chunk.Vector = decodeVector(embedding)
		if err := json.Unmarshal([]byte(metaJSON), &chunk.Metadata); err != nil {
			return fmt.Errorf("%w: chunk %d metadata: %w", core.ErrStorage, chunk.ID, err)
		}
		chunk.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		fn(&chunk)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return nil
}

// UpdateChunkMetadata merges metadata into the chunk's metadata.
func (ix *Index) UpdateChunkMetadata(ctx context.Context, chunkID core.ID, metadata map[string]string) error {
	err := ix.withTx(ctx, func(tx *sql.Tx) error {
		var metaJSON string
		err := tx.QueryRowContext(ctx, "SELECT metadata FROM chunks WHERE id = ?", int64(chunkID)).Scan(&metaJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: chunk %s", core.ErrNotFound, chunkID)
		}
		if err != nil {
			return err
		}
		current := map[string]string{}
		if err := json.Unmarshal([]byte(metaJSON), &current); err != nil {
			return err
		}
		maps.Copy(current, metadata)
		updated, err := json.Marshal(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE chunks SET metadata = ? WHERE id = ?", string(updated), int64(chunkID))
		return err
	})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return err
}

// Stats summarizes the index contents.
func (ix *Index) Stats(ctx context.Context) (core.IndexStats, error) {
	var (
		stats     core.IndexStats
		avg       sql.NullFloat64
		lastIndex sql.NullString
	)
	err := ix.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT document_id), COUNT(*), AVG(LENGTH(content)), MAX(created_at) FROM chunks",
	).Scan(&stats.DocumentCount, &stats.ChunkCount, &avg, &lastIndex)
	if err != nil {
		return core.IndexStats{}, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	stats.AvgChunkLength = avg.Float64
	if lastIndex.Valid {
		stats.LastIndexed, _ = time.Parse(time.RFC3339Nano, lastIndex.String)
	}
	return stats, nil
}

// encodeVector converts a []float32 to a little-endian byte slice.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to []float32.
func decodeVector(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
