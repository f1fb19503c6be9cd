package storage

import (
	"cmp"
	"slices"

	"github.com/poiesic/docrag/core"
)

// SortResults orders results by descending score, then document ID and index.
func SortResults(results []core.SearchResult) {
	slices.SortFunc(results, func(a, b core.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DocumentID, b.DocumentID); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
}
