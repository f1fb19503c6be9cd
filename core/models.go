package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for chunks.
// It is derived from the owning document and the chunk position.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID returns the stable ID of the chunk at index within documentID.
// Reprocessing a document reuses the same IDs for the same positions.
func ChunkID(documentID string, index int) ID {
	return IDFromContent(documentID + "\x00" + strconv.Itoa(index))
}

// String renders the ID in decimal form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal form produced by String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// DocumentStatus is the lifecycle state of a Document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an ingested file and its processing state.
// ErrorMessage is set only when Status is StatusFailed.
type Document struct {
	ID           string
	Name         string
	MIMEType     string
	Status       DocumentStatus
	ErrorMessage string
	StorageKey   string
	ChunkCount   int
	TextLength   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a retrievable slice of a document together with its embedding.
type Chunk struct {
	ID         ID
	DocumentID string
	Index      int
	Content    string
	Vector     []float32
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Well-known chunk metadata keys.
const (
	MetaDocumentID   = "document_id"
	MetaDocumentName = "document_name"
	MetaMIMEType     = "mime_type"
	MetaStorageKey   = "storage_key"
)

// SearchResult is a chunk matched by a similarity query. Not persisted.
type SearchResult struct {
	ChunkID    ID
	DocumentID string
	Index      int
	Content    string
	Score      float32
	Metadata   map[string]string
}

// DocumentName returns the document name recorded in the metadata, or "Unknown".
func (r SearchResult) DocumentName() string {
	if name := r.Metadata[MetaDocumentName]; name != "" {
		return name
	}
	return "Unknown"
}

// SearchOptions controls a similarity query.
// A nil Threshold disables threshold filtering.
type SearchOptions struct {
	K           int
	DocumentIDs []string
	Threshold   *float32
}

// Threshold is a helper for building SearchOptions literals.
func Threshold(v float32) *float32 {
	return &v
}

// Source is a document cited by an answer.
type Source struct {
	DocumentID   string
	DocumentName string
	ChunkID      ID
	Score        float32
}

// Role identifies the speaker of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of prior conversation.
type ChatTurn struct {
	Role    Role
	Content string
}

// Answer is the result of a question answered against the index.
type Answer struct {
	Answer      string
	Sources     []Source
	ContextUsed bool
}

// StreamEventType discriminates StreamEvent payloads.
type StreamEventType string

const (
	EventText     StreamEventType = "text"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is one element of a streamed answer.
// Text is set for EventText, Sources for EventComplete and Err for EventError.
type StreamEvent struct {
	Type    StreamEventType
	Text    string
	Sources []Source
	Err     string
}

// IngestResult summarizes a single ingest call.
type IngestResult struct {
	DocumentID   string
	Status       DocumentStatus
	ChunkCount   int
	StorageKey   string
	ChunkIDs     []ID
	TextLength   int
	ErrorMessage string
}

// IndexStats describes the contents of a vector index.
type IndexStats struct {
	DocumentCount  int
	ChunkCount     int
	AvgChunkLength float64
	LastIndexed    time.Time
}

// HealthStatus reports the state of one component.
type HealthStatus struct {
	Component string
	Healthy   bool
	Model     string
	Degraded  bool
	Detail    string
}

// EstimateTokens gives a rough token count for text, four characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
