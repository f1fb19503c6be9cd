// Package reindex reprocesses every stored document from its redacted text,
// typically after switching embedding models or chunking parameters.
//
// Documents are read in batches, reprocessed concurrently on a worker pool,
// and reported through a Progress implementation. A failure on one document
// is recorded on that document and does not stop the run.
package reindex
