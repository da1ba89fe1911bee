//go:build bedrock
// +build bedrock

package ai

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/itsneelabh/fraudmind/core"
)

func init() {
	MustRegister(&bedrockFactory{})
}

type bedrockFactory struct{}

func (f *bedrockFactory) Name() string        { return "bedrock" }
func (f *bedrockFactory) Description() string { return "AWS Bedrock Converse API" }

func (f *bedrockFactory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_DEFAULT_REGION") != "" {
		return 50, true
	}
	return 0, false
}

func (f *bedrockFactory) Create(config *AIConfig) core.AIClient {
	region := config.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		config.Logger.Error("Failed to load AWS config for bedrock provider", map[string]interface{}{
			"error":  err.Error(),
			"region": region,
		})
		return &bedrockClient{err: err}
	}

	return &bedrockClient{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: config.Model,
		logger:       config.Logger,
	}
}

// bedrockClient implements core.AIClient over the Bedrock Converse API
type bedrockClient struct {
	client       *bedrockruntime.Client
	defaultModel string
	logger       core.Logger
	err          error
}

func (c *bedrockClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if c.err != nil {
		return nil, fmt.Errorf("%w: bedrock client unavailable: %v", core.ErrProvider, c.err)
	}

	if options == nil {
		options = &core.AIOptions{}
	}
	model := options.Model
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	messages := []types.Message{
		{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: prompt},
			},
		},
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}

	if options.SystemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: options.SystemPrompt},
		}
	}

	inferenceConfig := &types.InferenceConfiguration{}
	configSet := false

	if options.MaxTokens > 0 {
		inferenceConfig.MaxTokens = aws.Int32(int32(options.MaxTokens))
		configSet = true
	}
	if options.Temperature > 0 {
		inferenceConfig.Temperature = aws.Float32(options.Temperature)
		configSet = true
	}
	if configSet {
		input.InferenceConfig = inferenceConfig
	}

	startTime := time.Now()
	output, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: bedrock converse error: %v", core.ErrProvider, err)
	}

	if output.Output == nil {
		return nil, fmt.Errorf("%w: no output in Bedrock response", core.ErrProvider)
	}

	var content string
	switch v := output.Output.(type) {
	case *types.ConverseOutputMemberMessage:
		for _, block := range v.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				content += text.Value
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected output type from Bedrock", core.ErrProvider)
	}

	if content == "" {
		return nil, fmt.Errorf("%w: no text content in Bedrock response", core.ErrProvider)
	}

	result := &core.AIResponse{
		Content: content,
		Model:   model,
	}
	if output.Usage != nil {
		result.Usage = core.TokenUsage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}

	c.logger.Debug("Bedrock response", map[string]interface{}{
		"model":    model,
		"duration": time.Since(startTime).String(),
		"tokens":   result.Usage.TotalTokens,
	})

	return result, nil
}
