// Package bedrock provides an ai.AIProvider backed by the Amazon Bedrock runtime.
//
// Embeddings use Amazon Titan text embedding models. Generation picks its
// request and response schema from the model identifier: Anthropic Claude
// models use the Human/Assistant completion format, Amazon Nova models use
// the messages format, and anything else receives a bare prompt.
//
// Throttling exceptions surface as core.ErrProviderThrottled so callers can
// retry them; connection and credential failures surface as
// core.ErrProviderUnavailable.
package bedrock
