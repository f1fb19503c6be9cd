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


// Package search answers questions against the vector index.
//
// The Answerer runs each query through a fixed sequence of stages:
//   - Query embedding
//   - Similarity search with a score threshold
//   - Context assembly with chat history
//   - Answer generation, whole or streamed
//   - Source de-duplication
//
// Answer never fails: any stage error yields the Apology text with no
// sources. StreamAnswer reports failures as a final error event.
package search
