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

package ai

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderKind selects the backing implementation for embeddings and generation.
type ProviderKind string

const (
	// ProviderBedrock talks to Amazon Bedrock runtime.
	ProviderBedrock ProviderKind = "bedrock"
	// ProviderOpenAI talks to any OpenAI-compatible API (OpenAI, Ollama, vLLM, LocalAI).
	ProviderOpenAI ProviderKind = "openai"
	// ProviderMock produces deterministic output without any network access.
	ProviderMock ProviderKind = "mock"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the implementation. Default: bedrock.
	Provider ProviderKind

	// Host is the base URL of an OpenAI-compatible API.
	// Example: "http://localhost:11434/v1"
	Host string

	// APIKey is sent to OpenAI-compatible APIs. Local servers accept any value.
	APIKey string

	// Region is the AWS region used for Bedrock.
	Region string

	// EmbeddingModel is the model identifier used for text embeddings.
	// Example: "amazon.titan-embed-text-v1", "text-embedding-3-small"
	EmbeddingModel string

	// GenerationModel is the model identifier used for answers.
	// Example: "anthropic.claude-instant-v1", "amazon.nova-lite-v1:0", "gpt-4o-mini"
	GenerationModel string

	// Dimensions is the length of every embedding vector. Default: 1536
	Dimensions int

	// MaxBatchSize caps the number of texts per embedding request.
	// Zero means the provider's own limit.
	MaxBatchSize int

	// MaxTextLength caps the number of characters sent per text.
	// Zero means the provider's own limit.
	MaxTextLength int

	// MaxTokens, Temperature and TopP shape generation requests.
	MaxTokens   int
	Temperature float64
	TopP        float64

	// RequestsPerSecond paces provider calls. Zero disables pacing.
	RequestsPerSecond float64

	// Retry controls how throttled calls are retried.
	Retry RetryPolicy
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider selects the provider implementation.
func WithProvider(kind ProviderKind) ConfigOption {
	return func(c *Config) {
		c.Provider = kind
	}
}

// WithHost sets the OpenAI-compatible base URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithAPIKey sets the API key for OpenAI-compatible providers.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithRegion sets the AWS region.
func WithRegion(region string) ConfigOption {
	return func(c *Config) {
		c.Region = region
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGenerationModel sets the generation model identifier.
func WithGenerationModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerationModel = model
	}
}

// WithDimensions sets the embedding dimension.
func WithDimensions(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dim
	}
}

// WithBatchLimits overrides the provider's batch size and text length limits.
func WithBatchLimits(maxBatchSize, maxTextLength int) ConfigOption {
	return func(c *Config) {
		c.MaxBatchSize = maxBatchSize
		c.MaxTextLength = maxTextLength
	}
}

// WithSampling sets max tokens, temperature and top_p for generation.
func WithSampling(maxTokens int, temperature, topP float64) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = maxTokens
		c.Temperature = temperature
		c.TopP = topP
	}
}

// WithRequestsPerSecond paces provider calls.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// WithRetryPolicy sets the retry policy for throttled calls.
func WithRetryPolicy(p RetryPolicy) ConfigOption {
	return func(c *Config) {
		c.Retry = p
	}
}

// DefaultConfig returns a Config targeting Amazon Bedrock with Titan embeddings.
func DefaultConfig() *Config {
	return &Config{
		Provider:        ProviderBedrock,
		Region:          "us-east-1",
		EmbeddingModel:  "amazon.titan-embed-text-v1",
		GenerationModel: "anthropic.claude-instant-v1",
		Dimensions:      1536,
		MaxTokens:       4096,
		Temperature:     0.7,
		TopP:            0.9,
		Retry:           DefaultRetryPolicy(),
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithProvider(ProviderOpenAI),
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("nomic-embed-text"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix, and an empty API key becomes "none".
func (c *Config) Normalize() {
	c.Provider = ProviderKind(strings.ToLower(strings.TrimSpace(string(c.Provider))))
	if c.Provider != ProviderOpenAI {
		return
	}
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/") + "/v1"
	}
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderBedrock:
		if c.Region == "" {
			return errors.New("ai config: Region is required for bedrock")
		}
	case ProviderOpenAI:
		if c.Host == "" {
			return errors.New("ai config: Host is required for openai")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("ai config: unknown provider %q", c.Provider)
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GenerationModel == "" {
		return errors.New("ai config: GenerationModel is required")
	}
	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.MaxBatchSize < 0 || c.MaxTextLength < 0 {
		return errors.New("ai config: batch limits cannot be negative")
	}
	if c.MaxTokens <= 0 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return errors.New("ai config: Temperature must be between 0 and 1")
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return errors.New("ai config: TopP must be in (0, 1]")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond cannot be negative")
	}
	return c.Retry.Validate()
}
