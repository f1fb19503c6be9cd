// Package embedding produces the vectors stored in and queried against the
// vector index.
//
// A Generator splits its input into provider-sized batches, runs them on a
// worker pool and reassembles the results in input order. Throttled batches
// are retried with exponential backoff. When the provider cannot serve a call
// the generator enters degraded mode and answers with Fallback vectors, which
// are deterministic per text, until Reset is called.
package embedding
