package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"same content produces same ID", "test content"},
		{"empty string", ""},
		{"long content", "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	if ChunkID("doc-1", 0) != ChunkID("doc-1", 0) {
		t.Errorf("ChunkID() not stable")
	}
	if ChunkID("doc-1", 0) == ChunkID("doc-1", 1) {
		t.Errorf("ChunkID() collides across indices")
	}
	if ChunkID("doc-1", 0) == ChunkID("doc-2", 0) {
		t.Errorf("ChunkID() collides across documents")
	}
	// "doc-1" + "1" must not alias "doc-11" + "".
	if ChunkID("doc-1", 10) == ChunkID("doc-11", 0) {
		t.Errorf("ChunkID() aliases document/index boundary")
	}
}

func TestIDStringRoundTrip(t *testing.T) {
	id := ChunkID("doc", 3)
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID(String()) = %d, want %d", parsed, id)
	}
	if _, err := ParseID("not-a-number"); err == nil {
		t.Errorf("ParseID() expected error for garbage input")
	}
}

func TestSearchResultDocumentName(t *testing.T) {
	r := SearchResult{Metadata: map[string]string{MetaDocumentName: "report.pdf"}}
	if got := r.DocumentName(); got != "report.pdf" {
		t.Errorf("DocumentName() = %q", got)
	}
	if got := (SearchResult{}).DocumentName(); got != "Unknown" {
		t.Errorf("DocumentName() on empty metadata = %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("EstimateTokens() = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}
