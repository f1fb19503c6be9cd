// Package generation produces natural-language answers grounded in
// retrieved document chunks.
//
// Generate and Stream share one prompt layout: an instruction to answer only
// from the supplied context, the numbered chunks with their document names,
// recent chat history and the user's query. When the provider is throttled
// past the retry budget or unreachable, the Engine serves clearly labeled
// mock output until Reset.
package generation
