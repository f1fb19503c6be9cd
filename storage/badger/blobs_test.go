package badger

import (
	"context"
	"testing"

	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStore_PutGetDelete(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	meta := map[string]string{"document_id": "doc", "redacted": "true"}
	require.NoError(t, stores.Blobs.Put(ctx, "documents/doc/redacted.txt", []byte("hello"), "text/plain", meta))
	meta["redacted"] = "changed"

	blob, err := stores.Blobs.Get(ctx, "documents/doc/redacted.txt")
	require.NoError(t, err)
	assert.Equal(t, "documents/doc/redacted.txt", blob.Key)
	assert.Equal(t, "text/plain", blob.ContentType)
	assert.Equal(t, []byte("hello"), blob.Data)
	assert.Equal(t, "true", blob.Metadata["redacted"])
	assert.False(t, blob.CreatedAt.IsZero())

	require.NoError(t, stores.Blobs.Put(ctx, "documents/doc/redacted.txt", []byte("replaced"), "text/plain", nil))
	blob, err = stores.Blobs.Get(ctx, "documents/doc/redacted.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), blob.Data)

	require.NoError(t, stores.Blobs.Delete(ctx, "documents/doc/redacted.txt"))
	_, err = stores.Blobs.Get(ctx, "documents/doc/redacted.txt")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, stores.Blobs.Delete(ctx, "documents/doc/redacted.txt"))
}

func TestBlobStore_EmptyKey(t *testing.T) {
	stores := newTestStores(t)
	err := stores.Blobs.Put(context.Background(), "", []byte("x"), "text/plain", nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}
