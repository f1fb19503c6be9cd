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
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/poiesic/docrag/ai"
	"golang.org/x/time/rate"
)

const contentTypeJSON = "application/json"

// Runtime is the slice of the Bedrock runtime API the provider uses.
// Errors are already mapped onto the ai error taxonomy.
type Runtime interface {
	// Invoke sends body to modelID and returns the response body.
	Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error)

	// InvokeStream sends body to modelID and calls onChunk with the payload
	// of every chunk event. An error from onChunk ends the stream.
	InvokeStream(ctx context.Context, modelID string, body []byte, onChunk func([]byte) error) error
}

// sdkRuntime implements Runtime with the AWS SDK client.
type sdkRuntime struct {
	client  *bedrockruntime.Client
	limiter *rate.Limiter
}

// NewRuntime loads the default AWS credential chain for cfg.Region and
// returns a Runtime paced at cfg.RequestsPerSecond.
func NewRuntime(ctx context.Context, cfg *ai.Config) (Runtime, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, ai.Unavailable(err)
	}
	return &sdkRuntime{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		limiter: newLimiter(cfg.RequestsPerSecond),
	}, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (r *sdkRuntime) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func (r *sdkRuntime) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
		Body:        body,
	})
	if err != nil {
		return nil, classify(err)
	}
	return out.Body, nil
}

func (r *sdkRuntime) InvokeStream(ctx context.Context, modelID string, body []byte, onChunk func([]byte) error) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	out, err := r.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
		Body:        body,
	})
	if err != nil {
		return classify(err)
	}

	stream := out.GetStream()
	defer stream.Close()

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil {
					return classify(err)
				}
				return nil
			}
			chunk, isChunk := event.(*types.ResponseStreamMemberChunk)
			if !isChunk {
				continue
			}
			if err := onChunk(chunk.Value.Bytes); err != nil {
				return err
			}
		}
	}
}

// classify maps Bedrock exceptions onto ai.Throttled / ai.Unavailable.
func classify(err error) error {
	var throttled *types.ThrottlingException
	var unavailable *types.ServiceUnavailableException
	var notReady *types.ModelNotReadyException
	switch {
	case errors.As(err, &throttled):
		return ai.Throttled(err)
	case errors.As(err, &unavailable), errors.As(err, &notReady):
		return ai.Unavailable(err)
	case strings.Contains(strings.ToLower(err.Error()), "credential"):
		return ai.Unavailable(err)
	}
	return ai.ClassifyTransportError(err)
}
