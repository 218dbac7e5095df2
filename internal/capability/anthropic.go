package capability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultModelPricing contains pricing for known Claude models.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5-20251101":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// AnthropicConfig contains configuration for the Anthropic-backed invoker.
type AnthropicConfig struct {
	// Model is the Claude model to use. Defaults to Sonnet.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// MaxTokens caps the response size. Defaults to 4096.
	MaxTokens int64
	// UseAWSBedrock routes requests through AWS Bedrock instead of the API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// Pricing overrides the default pricing table when set.
	Pricing *ModelPricing
}

// AnthropicInvoker executes requests against the Anthropic Messages API,
// selecting a system prompt by role and converting reported token usage
// into dollar cost.
type AnthropicInvoker struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	pricing   *ModelPricing
}

// NewAnthropicInvoker creates an invoker from the given configuration.
func NewAnthropicInvoker(cfg AnthropicConfig) (*AnthropicInvoker, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicInvoker{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		pricing:   cfg.Pricing,
	}, nil
}

// Invoke sends one message and returns the text payload, the dollar cost
// derived from reported token usage, and the wall-clock duration.
func (a *AnthropicInvoker) Invoke(ctx context.Context, req Request) (Result, error) {
	prompt := req.Prompt
	if req.Context != "" {
		prompt = fmt.Sprintf("%s\n\n## Context\n%s", req.Prompt, req.Context)
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt(req.Role)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic invoke (task %s, role %s): %w", req.TaskID, req.Role, err)
	}

	var payload string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			payload += variant.Text
		}
	}

	return Result{
		Payload:  payload,
		Cost:     a.cost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Duration: elapsed,
	}, nil
}

// cost converts token usage into dollars via the pricing table. Unknown
// models cost zero rather than failing the task.
func (a *AnthropicInvoker) cost(inputTokens, outputTokens int64) float64 {
	pricing := a.pricing
	if pricing == nil {
		if p, ok := DefaultModelPricing[string(a.model)]; ok {
			pricing = &p
		}
	}
	if pricing == nil {
		return 0
	}
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPerMillion
	return inputCost + outputCost
}
