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

package bedrock

import (
	"context"
	"log/slog"

	"github.com/poiesic/docrag/ai"
)

// Provider implements ai.AIProvider on Amazon Bedrock.
type Provider struct {
	config    *ai.Config
	embedder  *Embedder
	completer *Completer
	logger    *slog.Logger
}

// NewProvider creates a Bedrock provider using the default AWS credential chain.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	runtime, err := NewRuntime(ctx, config)
	if err != nil {
		return nil, err
	}
	return newProvider(runtime, config), nil
}

// NewProviderWithRuntime creates a provider on top of an existing Runtime.
func NewProviderWithRuntime(runtime Runtime, config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newProvider(runtime, config), nil
}

func newProvider(runtime Runtime, config *ai.Config) *Provider {
	return &Provider{
		config:    config,
		embedder:  newEmbedder(runtime, config),
		completer: newCompleter(runtime, config),
		logger:    slog.Default().With("component", "bedrock-provider"),
	}
}

// Embedder returns the Titan embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Completer returns the text generation service.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// Close releases resources held by the provider.
func (p *Provider) Close() error {
	p.logger.Debug("closing bedrock provider")
	return nil
}
