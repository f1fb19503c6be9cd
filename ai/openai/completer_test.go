package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/docrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is an llms.Model that replays canned chunks.
type fakeModel struct {
	chunks []string
	err    error
	opts   llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.opts.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := f.opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: strings.Join(f.chunks, "")}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(ai.ProviderOpenAI),
		ai.WithHost("http://localhost:11434"),
		ai.WithGenerationModel("test-model"),
		ai.WithSampling(256, 0.3, 0.8),
	)
}

func TestCompleter_Complete(t *testing.T) {
	model := &fakeModel{chunks: []string{"Hello", " world"}}
	c := newCompleterWithModel(model, testConfig())

	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
	assert.Equal(t, 256, model.opts.MaxTokens)
	assert.InDelta(t, 0.3, model.opts.Temperature, 1e-9)
	assert.InDelta(t, 0.8, model.opts.TopP, 1e-9)
	assert.Equal(t, "test-model", c.Model())
}

func TestCompleter_CompleteClassifiesRateLimit(t *testing.T) {
	model := &fakeModel{err: errors.New("status code: 429, rate limit exceeded")}
	c := newCompleterWithModel(model, testConfig())

	_, err := c.Complete(context.Background(), "hi")
	assert.True(t, ai.IsThrottled(err))
}

func TestCompleter_Stream(t *testing.T) {
	model := &fakeModel{chunks: []string{"a", "", "b", "c"}}
	c := newCompleterWithModel(model, testConfig())

	var got []string
	err := c.Stream(context.Background(), "hi", func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestCompleter_StreamStopsOnCallbackError(t *testing.T) {
	model := &fakeModel{chunks: []string{"a", "b", "c"}}
	c := newCompleterWithModel(model, testConfig())

	stop := errors.New("consumer gone")
	var got []string
	err := c.Stream(context.Background(), "hi", func(s string) error {
		got = append(got, s)
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a", "b"}, got)
}
