// Package ingestion turns uploaded documents into indexed chunks.
//
// The Pipeline runs every document through the same stages:
//   - MIME and size checks
//   - Text extraction and redaction
//   - Storage of the redacted text as a blob
//   - Chunking, embedding and an atomic index upsert
//
// Unsupported types and documents without text are reported as typed errors.
// Every other stage failure is recorded on the document as a failed status and
// the call returns normally. Submit runs ingests on a worker pool.
package ingestion
