package main

import (
	"io"
	"os"
	"sync"

	"github.com/poiesic/docrag/reindex"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// barProgress renders reindex.Progress updates as a terminal progress bar.
type barProgress struct {
	writer      io.Writer
	description string

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

var _ reindex.Progress = (*barProgress)(nil)

func newBarProgress(w io.Writer, description string) *barProgress {
	return &barProgress{writer: w, description: description}
}

func (p *barProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionSetDescription(p.description),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *barProgress) Add(processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(processed + failed)
}

func (p *barProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int)    {}
func (nopProgress) Add(int, int) {}
func (nopProgress) Finish()      {}

// terminalProgress reports whether stderr is an interactive terminal.
func terminalProgress() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
