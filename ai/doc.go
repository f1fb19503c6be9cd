// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides abstractions for the model providers used by docrag.
//
// The package defines two service interfaces and an aggregate:
//
//   - Embedder: turns batches of text into fixed-dimension vectors
//   - Completer: produces text from a prompt, whole or as a stream
//   - AIProvider: bundles both behind one lifecycle
//
// It also holds the shared pieces every provider relies on: Config with
// functional options, RetryPolicy, the ModelFamily lookup, and helpers that
// map transport failures onto core.ErrProviderThrottled and
// core.ErrProviderUnavailable.
//
// # Implementation Packages
//
//   - ai/bedrock: Amazon Bedrock runtime (Titan embeddings, claude/nova/generic generation)
//   - ai/openai: any OpenAI-compatible API through langchaingo
//   - ai/mock: deterministic test doubles
//
// Public constructors in the provider packages return interface types.
// mock constructors return concrete types so tests can inject behavior and
// inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderOpenAI), ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"Hello world"}, true)
package ai
