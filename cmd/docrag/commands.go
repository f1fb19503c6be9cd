package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/reindex"
	"github.com/poiesic/docrag/search"
	"github.com/urfave/cli/v2"
)

func openDatabase(c *cli.Context) (*docrag.Database, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if path := c.String("db"); path != "" {
		if cfg.Storage.SQLitePath == filepath.Join(cfg.Storage.Path, "index.db") {
			cfg.Storage.SQLitePath = filepath.Join(path, "index.db")
		}
		cfg.Storage.Path = path
	}

	db, err := docrag.NewDatabase(c.Context, cfg.Storage.Path, docrag.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// documentArg returns the single positional document ID.
func documentArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one document ID, got %d arguments", c.NArg())
	}
	return c.Args().First(), nil
}

// expandPatterns resolves glob patterns into a sorted, de-duplicated list
// of regular files.
func expandPatterns(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, m)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

type fileResult struct {
	path   string
	result *core.IngestResult
	err    error
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file or glob pattern is required")
	}
	files, err := expandPatterns(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no files match the given patterns")
	}
	if c.String("id") != "" && len(files) > 1 {
		return fmt.Errorf("--id can only be used with a single file, %d matched", len(files))
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var progress reindex.Progress = nopProgress{}
	if !c.Bool("no-progress") && terminalProgress() {
		progress = newBarProgress(c.App.ErrWriter, "ingesting")
	}
	progress.Start(len(files))

	var mu sync.Mutex
	results := make([]fileResult, 0, len(files))
	record := func(r fileResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		if r.err == nil && r.result.Status == core.StatusProcessed {
			progress.Add(1, 0)
		} else {
			progress.Add(0, 1)
		}
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			record(fileResult{path: path, err: err})
			continue
		}
		req := ingestion.Request{
			DocumentID: c.String("id"),
			Filename:   filepath.Base(path),
			MIMEType:   c.String("mime-type"),
			Data:       data,
		}
		err = db.Submit(c.Context, req, func(result *core.IngestResult, err error) {
			record(fileResult{path: path, result: result, err: err})
		})
		if err != nil {
			record(fileResult{path: path, err: err})
		}
	}
	db.Wait()
	progress.Finish()

	slices.SortFunc(results, func(a, b fileResult) int { return strings.Compare(a.path, b.path) })
	failed := 0
	w := c.App.Writer
	for _, r := range results {
		switch {
		case r.err != nil:
			failed++
			fmt.Fprintf(w, "failed     %s: %v\n", r.path, r.err)
		case r.result.Status != core.StatusProcessed:
			failed++
			fmt.Fprintf(w, "failed     %s: %s\n", r.path, r.result.ErrorMessage)
		default:
			fmt.Fprintf(w, "processed  %s -> %s (%d chunks)\n", r.path, r.result.DocumentID, r.result.ChunkCount)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func queryFrom(c *cli.Context) (search.Query, error) {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return search.Query{}, errors.New("a query is required")
	}
	q := search.Query{
		Text:        text,
		MaxResults:  c.Int("max-results"),
		DocumentIDs: c.StringSlice("doc"),
	}
	if c.IsSet("threshold") {
		threshold := float32(c.Float64("threshold"))
		q.Threshold = &threshold
	}
	return q, nil
}

func askCommand(c *cli.Context) error {
	q, err := queryFrom(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	w := c.App.Writer
	if !c.Bool("stream") {
		answer := db.Answer(c.Context, q)
		fmt.Fprintln(w, answer.Answer)
		printSources(w, answer.Sources)
		return nil
	}

	for event := range db.StreamAnswer(c.Context, q) {
		switch event.Type {
		case core.EventText:
			fmt.Fprint(w, event.Text)
		case core.EventComplete:
			fmt.Fprintln(w)
			printSources(w, event.Sources)
		case core.EventError:
			fmt.Fprintln(w)
			return fmt.Errorf("streaming failed: %s", event.Err)
		}
	}
	return nil
}

func printSources(w io.Writer, sources []core.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, s := range sources {
		fmt.Fprintf(w, "  - %s (%s, score %.3f)\n", s.DocumentName, s.DocumentID, s.Score)
	}
}

func searchCommand(c *cli.Context) error {
	q, err := queryFrom(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.Search(c.Context, q)
	if err != nil {
		return err
	}
	w := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.3f] %s #%d\n   %s\n", i+1, r.Score, r.DocumentName(), r.Index, preview(r.Content, 160))
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func listCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.ListDocuments(c.Context)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCHUNKS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Name, d.Status, d.ChunkCount, d.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func getCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := db.GetDocument(c.Context, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", doc.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", doc.Name)
	fmt.Fprintf(tw, "MIME type:\t%s\n", doc.MIMEType)
	fmt.Fprintf(tw, "Status:\t%s\n", doc.Status)
	if doc.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", doc.ErrorMessage)
	}
	fmt.Fprintf(tw, "Storage key:\t%s\n", doc.StorageKey)
	fmt.Fprintf(tw, "Chunks:\t%d\n", doc.ChunkCount)
	fmt.Fprintf(tw, "Text length:\t%d\n", doc.TextLength)
	fmt.Fprintf(tw, "Created:\t%s\n", doc.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Updated:\t%s\n", doc.UpdatedAt.Format(time.RFC3339))
	return tw.Flush()
}

func deleteCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.DeleteDocument(c.Context, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %s (%d chunks)\n", id, removed)
	return nil
}

func downloadCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	blob, err := db.DownloadDocument(c.Context, id)
	if err != nil {
		return err
	}
	if out := c.String("output"); out != "" {
		return os.WriteFile(out, blob.Data, 0o644)
	}
	_, err = c.App.Writer.Write(blob.Data)
	return err
}

func chunksCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	chunks, err := db.DocumentChunks(c.Context, id)
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, chunk := range chunks {
		fmt.Fprintf(w, "--- chunk %d (%s, %d chars)\n%s\n", chunk.Index, chunk.ID, len([]rune(chunk.Content)), chunk.Content)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "Documents:          %d\n", stats.DocumentCount)
	fmt.Fprintf(w, "Chunks:             %d\n", stats.ChunkCount)
	fmt.Fprintf(w, "Avg chunk length:   %.1f\n", stats.AvgChunkLength)
	if !stats.LastIndexed.IsZero() {
		fmt.Fprintf(w, "Last indexed:       %s\n", stats.LastIndexed.Format(time.RFC3339))
	}
	return nil
}

func healthCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	unhealthy := 0
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tHEALTHY\tDEGRADED\tMODEL\tDETAIL")
	for _, s := range db.Health(c.Context) {
		if !s.Healthy {
			unhealthy++
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\n", s.Component, s.Healthy, s.Degraded, s.Model, s.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if unhealthy > 0 {
		return cli.Exit(fmt.Sprintf("%d components unhealthy", unhealthy), 1)
	}
	return nil
}

func summarizeCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := db.Summarize(c.Context, id, c.Int("words"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, summary)
	return nil
}

func topicsCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	topics, err := db.ExtractTopics(c.Context, id, c.Int("count"))
	if err != nil {
		return err
	}
	for _, t := range topics {
		fmt.Fprintln(c.App.Writer, t)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	cfg := &reindex.Config{
		BatchSize: c.Int("batch-size"),
		Workers:   c.Int("workers"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	for _, s := range c.StringSlice("status") {
		status := core.DocumentStatus(strings.ToLower(s))
		switch status {
		case core.StatusPending, core.StatusProcessing, core.StatusProcessed, core.StatusFailed:
			cfg.Statuses = append(cfg.Statuses, status)
		default:
			return fmt.Errorf("unknown status %q", s)
		}
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var progress reindex.Progress = reindex.NewProgressTracker(c.App.ErrWriter, c.Int("report-interval"))
	if terminalProgress() {
		progress = newBarProgress(c.App.ErrWriter, "reindexing")
	}

	summary, err := db.Reindex(c.Context, cfg, reindex.WithProgress(progress))
	if err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Reindexed %d of %d documents in %s\n", summary.Processed, summary.Total, summary.Elapsed.Round(time.Millisecond))
	if summary.Failed == 0 {
		return nil
	}
	ids := make([]string, 0, len(summary.Failures))
	for id := range summary.Failures {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "failed     %s: %s\n", id, summary.Failures[id])
	}
	return fmt.Errorf("%d documents failed to reindex", summary.Failed)
}
