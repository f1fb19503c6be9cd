package badger

import (
	"encoding/binary"

	"github.com/poiesic/docrag/core"
)

// Key prefixes for different data types
const (
	chunkPrefix    = "chk:"
	chunkIDPrefix  = "cid:"
	documentPrefix = "doc:"
	blobPrefix     = "blob:"
)

// makeDocumentChunksPrefix returns the prefix shared by every chunk of a document.
// Format: prefix + documentID + 0x00
func makeDocumentChunksPrefix(documentID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+len(documentID)+1)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, documentID...)
	return append(buf, 0)
}

// makeChunkKey generates the primary key of a chunk.
// Format: prefix + documentID + 0x00 + index
// The index is BigEndian so a prefix scan returns chunks in order.
func makeChunkKey(documentID string, index int) []byte {
	buf := makeDocumentChunksPrefix(documentID)
	return binary.BigEndian.AppendUint32(buf, uint32(index))
}

// makeChunkIDKey generates the secondary key mapping a chunk ID to its primary key.
func makeChunkIDKey(id core.ID) []byte {
	buf := make([]byte, 0, len(chunkIDPrefix)+8)
	buf = append(buf, chunkIDPrefix...)
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeDocumentKey generates a key for a document record by ID.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeBlobKey generates a key for a stored object.
func makeBlobKey(key string) []byte {
	return []byte(blobPrefix + key)
}
