package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/pkg/httpretry"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIOptions configures an OpenAIProvider.
type OpenAIOptions struct {
	APIKey         string
	Model          string
	BaseURL        string
	Policy         string
	ImageAllowlist []string
	// HTTPClient defaults to a retrying client with a 60s timeout.
	HTTPClient httpretry.HTTPDoer
}

// OpenAIProvider generates candidates with the chat completions API in JSON
// mode.
type OpenAIProvider struct {
	apiKey    string
	model     string
	endpoint  string
	policy    string
	allowlist []string
	client    httpretry.HTTPDoer
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewOpenAIProvider creates an OpenAIProvider. The API key is required.
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("OPEN_AI_KEY: %w", ErrMissingAPIKey)
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	if opts.Policy == "" {
		opts.Policy = DefaultPolicy
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, 2)
	}
	return &OpenAIProvider{
		apiKey:    opts.APIKey,
		model:     opts.Model,
		endpoint:  strings.TrimRight(opts.BaseURL, "/") + "/v1/chat/completions",
		policy:    opts.Policy,
		allowlist: opts.ImageAllowlist,
		client:    client,
	}, nil
}

// GenerateCandidates asks the model for three candidates and validates them.
func (p *OpenAIProvider) GenerateCandidates(ctx context.Context, gctx domain.GenerationContext) ([]domain.CandidateDraft, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildPrompt(gctx, p.policy, p.allowlist)},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: request failed (%d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("openai: response was not valid JSON: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openai: response missing message content")
	}

	log.Printf("[content.OpenAI] week_of=%s model=%s tokens in=%d out=%d",
		gctx.WeekOf, p.model, out.Usage.PromptTokens, out.Usage.CompletionTokens)

	return ParseCandidates(out.Choices[0].Message.Content, p.allowlist)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
