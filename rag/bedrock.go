//go:build bedrock
// +build bedrock

package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/itsneelabh/fraudmind/core"
)

// BedrockEmbedder embeds text with an AWS Bedrock Titan embeddings model.
type BedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockEmbedder creates a cloud embedder for the given region and
// model id.
func NewBedrockEmbedder(ctx context.Context, region, modelID string) (*BedrockEmbedder, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v1"
	}
	return &BedrockEmbedder{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

func (b *BedrockEmbedder) embedOne(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]string{"inputText": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bedrock invoke error: %v", core.ErrProvider, err)
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(out.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response: %w", err)
	}
	return result.Embedding, nil
}

func (b *BedrockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, err := b.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (b *BedrockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return b.embedOne(ctx, text)
}

func newCloudEmbedder(cfg *core.Config) (Embedder, error) {
	return NewBedrockEmbedder(context.Background(), cfg.AWSRegion, cfg.BedrockEmbeddingsModel)
}
