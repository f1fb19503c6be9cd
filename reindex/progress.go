package reindex

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress receives reindexing progress.
type Progress interface {
	// Start is called once with the number of documents to reprocess.
	Start(total int)
	// Add records newly finished documents.
	Add(processed, failed int)
	// Finish is called once the run ends.
	Finish()
}

// ProgressTracker writes a single updating progress line to a writer.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int
	total          int
	processed      int
	failed         int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

var _ Progress = (*ProgressTracker)(nil)

// NewProgressTracker reports to writer every reportInterval documents.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

func (p *ProgressTracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.processed = 0
	p.failed = 0
	p.lastReported = 0
	p.startTime = time.Now()
	p.started = true
}

func (p *ProgressTracker) Add(processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.processed += processed
	p.failed += failed

	if p.done()-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.done()
	}
}

func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

func (p *ProgressTracker) done() int {
	return p.processed + p.failed
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	done := min(p.done(), p.total)
	percentage := 100.0
	if p.total > 0 {
		percentage = float64(done) / float64(p.total) * 100.0
	}
	rate := float64(done) / time.Since(p.startTime).Seconds()

	fmt.Fprintf(p.writer, "\rReindexed %d/%d documents (%.1f%%), %d failed - %.1f docs/s",
		done, p.total, percentage, p.failed, rate)
}
