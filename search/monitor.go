package search

import (
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/generation"
)

// Stage names one step of answering a query.
type Stage string

const (
	StageEmbedding  Stage = "embedding"
	StageSearch     Stage = "search"
	StageGeneration Stage = "generation"
)

// AnswerMonitor provides hooks to observe the answer process.
// Implement this interface to track intermediate steps and results.
type AnswerMonitor interface {
	Start(query string)
	AfterEmbedding(vector []float32)
	AfterSearch(results []core.SearchResult)
	AfterContextAssembly(req generation.Request)
	Failed(stage Stage, err error)
	Finish(answer core.Answer)
}

// noopMonitor is a no-op implementation of AnswerMonitor
type noopMonitor struct{}

var _ AnswerMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                            {}
func (n *noopMonitor) AfterEmbedding(_ []float32)                {}
func (n *noopMonitor) AfterSearch(_ []core.SearchResult)         {}
func (n *noopMonitor) AfterContextAssembly(_ generation.Request) {}
func (n *noopMonitor) Failed(_ Stage, _ error)                   {}
func (n *noopMonitor) Finish(_ core.Answer)                      {}
