// Package sqlite provides a storage.VectorIndex backed by a single SQLite
// file. It is the portable alternative to the badger index: vectors are kept
// as little-endian float32 blobs and ranked with an exhaustive cosine scan.
package sqlite
