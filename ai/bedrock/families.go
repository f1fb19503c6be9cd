package bedrock

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/docrag/ai"
)

// ErrUnexpectedResponse is returned when a response body matches no known schema.
var ErrUnexpectedResponse = errors.New("bedrock: unexpected response format")

const (
	humanTurn     = "\n\nHuman:"
	assistantTurn = "\n\nAssistant:"
)

// sampling carries the generation parameters shared by every family.
type sampling struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// codec is the request builder / response parser pair for one model family.
type codec interface {
	request(prompt string, s sampling) ([]byte, error)
	parse(body []byte) (string, error)
	parseChunk(body []byte) (string, error)
}

// codecFor resolves the codec for a family.
func codecFor(f ai.ModelFamily) codec {
	switch f {
	case ai.FamilyClaude:
		return claudeCodec{}
	case ai.FamilyNova:
		return novaCodec{}
	default:
		return genericCodec{}
	}
}

// claudeCodec speaks the Human/Assistant text completion schema.
type claudeCodec struct{}

type claudeRequest struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	Temperature       float64  `json:"temperature"`
	TopP              float64  `json:"top_p"`
	StopSequences     []string `json:"stop_sequences"`
}

type claudeResponse struct {
	Completion *string `json:"completion"`
}

func (claudeCodec) request(prompt string, s sampling) ([]byte, error) {
	prompt = strings.TrimSuffix(prompt, assistantTurn)
	return json.Marshal(claudeRequest{
		Prompt:            humanTurn + " " + prompt + assistantTurn,
		MaxTokensToSample: s.MaxTokens,
		Temperature:       s.Temperature,
		TopP:              s.TopP,
		StopSequences:     []string{humanTurn},
	})
}

func (claudeCodec) parse(body []byte) (string, error) {
	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if resp.Completion == nil {
		return "", ErrUnexpectedResponse
	}
	return *resp.Completion, nil
}

func (c claudeCodec) parseChunk(body []byte) (string, error) {
	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if resp.Completion == nil {
		return "", nil
	}
	return *resp.Completion, nil
}

// novaCodec speaks the messages + inferenceConfig schema.
type novaCodec struct{}

type novaText struct {
	Text string `json:"text"`
}

type novaMessage struct {
	Role    string     `json:"role"`
	Content []novaText `json:"content"`
}

type novaRequest struct {
	Messages        []novaMessage `json:"messages"`
	InferenceConfig struct {
		MaxNewTokens int     `json:"max_new_tokens"`
		Temperature  float64 `json:"temperature"`
		TopP         float64 `json:"top_p"`
	} `json:"inferenceConfig"`
}

type novaResponse struct {
	Output *struct {
		Message struct {
			Content []novaText `json:"content"`
		} `json:"message"`
	} `json:"output"`
}

type novaChunk struct {
	ContentBlockDelta *struct {
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"contentBlockDelta"`
}

func (novaCodec) request(prompt string, s sampling) ([]byte, error) {
	var req novaRequest
	req.Messages = []novaMessage{{Role: "user", Content: []novaText{{Text: prompt}}}}
	req.InferenceConfig.MaxNewTokens = s.MaxTokens
	req.InferenceConfig.Temperature = s.Temperature
	req.InferenceConfig.TopP = s.TopP
	return json.Marshal(req)
}

func (novaCodec) parse(body []byte) (string, error) {
	var resp novaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if resp.Output == nil || len(resp.Output.Message.Content) == 0 {
		return "", ErrUnexpectedResponse
	}
	return resp.Output.Message.Content[0].Text, nil
}

func (novaCodec) parseChunk(body []byte) (string, error) {
	var chunk novaChunk
	if err := json.Unmarshal(body, &chunk); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if chunk.ContentBlockDelta == nil {
		// messageStart, metadata and similar events carry no text.
		return "", nil
	}
	return chunk.ContentBlockDelta.Delta.Text, nil
}

// genericCodec sends a bare prompt and understands the common response shapes.
type genericCodec struct{}

type genericRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type genericResponse struct {
	Completion *string `json:"completion"`
	Text       *string `json:"text"`
	Generation *string `json:"generation"`
	Outputs    []struct {
		Text string `json:"text"`
	} `json:"outputs"`
}

func (g genericResponse) text() (string, bool) {
	switch {
	case g.Completion != nil:
		return *g.Completion, true
	case g.Text != nil:
		return *g.Text, true
	case g.Generation != nil:
		return *g.Generation, true
	case len(g.Outputs) > 0:
		return g.Outputs[0].Text, true
	}
	return "", false
}

func (genericCodec) request(prompt string, s sampling) ([]byte, error) {
	return json.Marshal(genericRequest{
		Prompt:      prompt,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	})
}

func (genericCodec) parse(body []byte) (string, error) {
	var resp genericResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	text, ok := resp.text()
	if !ok {
		return "", ErrUnexpectedResponse
	}
	return text, nil
}

func (genericCodec) parseChunk(body []byte) (string, error) {
	var resp genericResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	text, _ := resp.text()
	return text, nil
}
