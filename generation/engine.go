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

package generation

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/core"
)

const (
	// summaryChunkLimit caps how many chunks feed a summary.
	summaryChunkLimit = 10
	// DefaultSummaryWords is the summary length used when none is given.
	DefaultSummaryWords = 500
	// DefaultTopicCount is the topic count used when none is given.
	DefaultTopicCount = 5
)

// ErrCompleterRequired is returned when New is called without a completer.
var ErrCompleterRequired = errors.New("completer required")

// errConsumerStopped ends a provider stream once the consumer stops iterating.
var errConsumerStopped = errors.New("stream consumer stopped")

// Engine turns retrieved context into answers. After a provider failure it
// switches to degraded mode and serves mock answers until Reset.
type Engine struct {
	completer    ai.Completer
	retry        ai.RetryPolicy
	historyTurns int
	degraded     atomic.Bool
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithRetryPolicy overrides the provider retry policy.
func WithRetryPolicy(policy ai.RetryPolicy) Option {
	return func(e *Engine) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		e.retry = policy
		return nil
	}
}

// WithHistoryTurns sets how many trailing chat turns reach the prompt.
func WithHistoryTurns(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			n = 0
		}
		e.historyTurns = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "generation")
		return nil
	}
}

// New creates an Engine on top of completer.
func New(completer ai.Completer, opts ...Option) (*Engine, error) {
	if completer == nil {
		return nil, ErrCompleterRequired
	}
	e := &Engine{
		completer:    completer,
		retry:        ai.DefaultRetryPolicy(),
		historyTurns: DefaultHistoryTurns,
		logger:       slog.Default().With("component", "generation"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Degraded reports whether mock output is being served.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// Reset leaves degraded mode.
func (e *Engine) Reset() {
	if e.degraded.Swap(false) {
		e.logger.Info("leaving degraded mode")
	}
}

// Model returns the provider's generation model identifier.
func (e *Engine) Model() string {
	return e.completer.Model()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) degrade(op string, err error) {
	e.logger.Error("generation provider failed, entering degraded mode", "op", op, "model", e.completer.Model(), "err", err)
	e.degraded.Store(true)
}

// complete runs prompt through the provider under the retry policy.
func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.completer.Complete(ctx, prompt)
		return err
	})
	return out, err
}

// Generate returns a complete answer for req. Only context errors are
// returned; provider failures yield the mock answer.
func (e *Engine) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.degraded.Load() {
		return MockAnswer(req), nil
	}

	answer, err := e.complete(ctx, BuildPrompt(req, e.historyTurns))
	if err != nil {
		if isContextErr(err) {
			return "", err
		}
		e.degrade("generate", err)
		return MockAnswer(req), nil
	}
	return answer, nil
}

// Stream yields the answer for req fragment by fragment. The provider
// request stops as soon as the consumer stops iterating or ctx ends.
//
// A provider failure before the first fragment falls back to the mock
// answer, streamed word by word. A failure after fragments were yielded is
// reported as the final (empty, err) pair.
func (e *Engine) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		if e.degraded.Load() {
			e.streamMock(ctx, req, yield)
			return
		}

		var produced, stopped bool
		policy := e.retry
		retryable := policy.Retryable
		if retryable == nil {
			retryable = ai.IsThrottled
		}
		policy.Retryable = func(err error) bool {
			return !produced && retryable(err)
		}

		prompt := BuildPrompt(req, e.historyTurns)
		err := policy.Do(ctx, func(ctx context.Context) error {
			return e.completer.Stream(ctx, prompt, func(fragment string) error {
				produced = true
				if !yield(fragment, nil) {
					stopped = true
					return errConsumerStopped
				}
				return nil
			})
		})

		switch {
		case stopped, err == nil:
			return
		case isContextErr(err):
			yield("", err)
		case !produced:
			e.degrade("stream", err)
			e.streamMock(ctx, req, yield)
		default:
			e.logger.Error("stream failed after partial output", "model", e.completer.Model(), "err", err)
			yield("", err)
		}
	}
}

func (e *Engine) streamMock(ctx context.Context, req Request, yield func(string, error) bool) {
	for _, fragment := range mockFragments(MockAnswer(req)) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		if !yield(fragment, nil) {
			return
		}
	}
}

// Summarize summarizes up to the first ten chunks in at most maxWords words.
func (e *Engine) Summarize(ctx context.Context, chunks []string, maxWords int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if maxWords <= 0 {
		maxWords = DefaultSummaryWords
	}
	if e.degraded.Load() {
		return MockSummary(len(chunks)), nil
	}

	text := strings.Join(chunks[:min(summaryChunkLimit, len(chunks))], "\n\n")
	summary, err := e.complete(ctx, summaryPrompt(text, maxWords))
	if err != nil {
		if isContextErr(err) {
			return "", err
		}
		e.degrade("summarize", err)
		return MockSummary(len(chunks)), nil
	}
	return strings.TrimSpace(summary), nil
}

// ExtractTopics asks for count topics in text and parses the comma-separated reply.
func (e *Engine) ExtractTopics(ctx context.Context, text string, count int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultTopicCount
	}
	if e.degraded.Load() {
		return mockTopics(count), nil
	}

	reply, err := e.complete(ctx, topicsPrompt(text, count))
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		e.degrade("topics", err)
		return mockTopics(count), nil
	}

	topics := make([]string, 0, count)
	for _, t := range strings.Split(reply, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		topics = append(topics, t)
		if len(topics) == count {
			break
		}
	}
	return topics, nil
}

// Health sends a short probe prompt to the provider.
func (e *Engine) Health(ctx context.Context) core.HealthStatus {
	status := core.HealthStatus{
		Component: "generation",
		Model:     e.completer.Model(),
		Degraded:  e.Degraded(),
	}
	reply, err := e.completer.Complete(ctx, "Hello, this is a test. Please respond with 'OK'.")
	switch {
	case err != nil:
		status.Detail = err.Error()
	case strings.TrimSpace(reply) == "":
		status.Detail = "empty response"
	default:
		status.Healthy = true
	}
	return status
}
