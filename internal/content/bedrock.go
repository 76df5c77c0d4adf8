package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/weekly-campaign/internal/domain"
)

const defaultBedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"

// BedrockInvoker is the subset of the Bedrock runtime client we use.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockOptions configures a BedrockProvider.
type BedrockOptions struct {
	Region         string
	ModelID        string
	Policy         string
	ImageAllowlist []string
	// Client overrides the runtime client built from the default AWS chain.
	Client BedrockInvoker
}

// BedrockProvider generates candidates with an Anthropic model on Bedrock.
type BedrockProvider struct {
	client    BedrockInvoker
	modelID   string
	policy    string
	allowlist []string
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []bedrockContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockProvider creates a BedrockProvider. Credentials come from the
// default AWS chain unless opts.Client is set.
func NewBedrockProvider(ctx context.Context, opts BedrockOptions) (*BedrockProvider, error) {
	if opts.ModelID == "" {
		opts.ModelID = defaultBedrockModel
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.Policy == "" {
		opts.Policy = DefaultPolicy
	}
	client := opts.Client
	if client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
		if err != nil {
			return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
		}
		client = bedrockruntime.NewFromConfig(cfg)
	}
	return &BedrockProvider{
		client:    client,
		modelID:   opts.ModelID,
		policy:    opts.Policy,
		allowlist: opts.ImageAllowlist,
	}, nil
}

// GenerateCandidates invokes the model and validates its JSON answer.
func (p *BedrockProvider) GenerateCandidates(ctx context.Context, gctx domain.GenerationContext) ([]domain.CandidateDraft, error) {
	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4000,
		System:           SystemPrompt,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContentBlock{{Type: "text", Text: BuildPrompt(gctx, p.policy, p.allowlist)}},
		}},
		Temperature: 0.7,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: invoke model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("bedrock: parse response: %w", err)
	}
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("bedrock: response missing text content")
	}

	log.Printf("[content.Bedrock] week_of=%s model=%s tokens in=%d out=%d",
		gctx.WeekOf, p.modelID, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return ParseCandidates(stripFence(text.String()), p.allowlist)
}

// stripFence removes a ```json ... ``` wrapper if the model added one.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
