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

package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docrag/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client      llms.Model
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	logger      *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, ai.Unavailable(err)
	}

	return newCompleterWithModel(client, config), nil
}

func newCompleterWithModel(client llms.Model, config *ai.Config) *Completer {
	return &Completer{
		client:      client,
		model:       config.GenerationModel,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		topP:        config.TopP,
		logger:      slog.Default().With("component", "openai-completer"),
	}
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

func (c *Completer) messages(prompt string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}
}

func (c *Completer) options(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(c.temperature),
		llms.WithTopP(c.topP),
	}
	return append(opts, extra...)
}

// Complete returns the full completion for prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := c.client.GenerateContent(ctx, c.messages(prompt), c.options()...)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return "", ai.ClassifyTransportError(err)
	}
	if len(response.Choices) < 1 {
		return "", errors.New("openai: no choices returned from model")
	}
	return response.Choices[0].Content, nil
}

// Stream delivers the completion through onChunk as the server sends it.
// An error returned by onChunk aborts the request and is returned as-is.
func (c *Completer) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	var callbackErr error
	streamFn := func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		if err := onChunk(string(chunk)); err != nil {
			callbackErr = err
			return err
		}
		return nil
	}

	_, err := c.client.GenerateContent(ctx, c.messages(prompt), c.options(llms.WithStreamingFunc(streamFn))...)
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		c.logger.Error("streaming generation failed", "err", err)
		return ai.ClassifyTransportError(err)
	}
	return nil
}

// Model returns the generation model identifier.
func (c *Completer) Model() string {
	return c.model
}
