package reindex

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/core"
)

// Reprocessor rebuilds one stored document's chunks.
// *ingestion.Pipeline satisfies it.
type Reprocessor interface {
	Reprocess(ctx context.Context, documentID string) (*core.IngestResult, error)
}

// Outcome is the result of reprocessing one document.
type Outcome struct {
	DocumentID string
	Result     *core.IngestResult
	Err        error
}

// Succeeded reports whether the document ended up processed.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil && o.Result.Status == core.StatusProcessed
}

// BatchProcessor reprocesses a batch of documents concurrently.
type BatchProcessor struct {
	reprocessor Reprocessor
	pool        *ants.Pool
}

// NewBatchProcessor runs reprocessing on pool.
func NewBatchProcessor(reprocessor Reprocessor, pool *ants.Pool) *BatchProcessor {
	return &BatchProcessor{
		reprocessor: reprocessor,
		pool:        pool,
	}
}

// Process returns one outcome per document, in input order.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document) []Outcome {
	outcomes := make([]Outcome, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		outcomes[i].DocumentID = doc.ID
		wg.Add(1)
		run := func() {
			defer wg.Done()
			outcomes[i].Result, outcomes[i].Err = bp.reprocessor.Reprocess(ctx, doc.ID)
		}
		if err := bp.pool.Submit(run); err != nil {
			wg.Done()
			outcomes[i].Err = err
		}
	}
	wg.Wait()
	return outcomes
}
