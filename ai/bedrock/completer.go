package bedrock

import (
	"context"
	"log/slog"

	"github.com/poiesic/docrag/ai"
)

// Completer implements ai.Completer against a Bedrock text model.
// The request schema is chosen from the model identifier.
type Completer struct {
	runtime  Runtime
	model    string
	family   ai.ModelFamily
	codec    codec
	sampling sampling
	logger   *slog.Logger
}

func newCompleter(runtime Runtime, config *ai.Config) *Completer {
	family := ai.ResolveFamily(config.GenerationModel)
	return &Completer{
		runtime: runtime,
		model:   config.GenerationModel,
		family:  family,
		codec:   codecFor(family),
		sampling: sampling{
			MaxTokens:   config.MaxTokens,
			Temperature: config.Temperature,
			TopP:        config.TopP,
		},
		logger: slog.Default().With("component", "bedrock-completer", "family", family.String()),
	}
}

// Complete returns the full completion for prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := c.codec.request(prompt, c.sampling)
	if err != nil {
		return "", err
	}
	raw, err := c.runtime.Invoke(ctx, c.model, body)
	if err != nil {
		c.logger.Error("model invocation failed", "model", c.model, "err", err)
		return "", err
	}
	return c.codec.parse(raw)
}

// Stream delivers text fragments as chunk events arrive. Events without
// text are skipped.
func (c *Completer) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	body, err := c.codec.request(prompt, c.sampling)
	if err != nil {
		return err
	}
	return c.runtime.InvokeStream(ctx, c.model, body, func(payload []byte) error {
		text, err := c.codec.parseChunk(payload)
		if err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return onChunk(text)
	})
}

// Model returns the generation model identifier.
func (c *Completer) Model() string {
	return c.model
}

// Family returns the resolved model family.
func (c *Completer) Family() ai.ModelFamily {
	return c.family
}
