package content

import (
	"context"
	"fmt"

	"github.com/ignite/weekly-campaign/internal/config"
)

// New builds the provider named by cfg.Content.Provider.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Content.Provider {
	case "", "mock":
		return NewMockProvider(), nil
	}

	policy, err := LoadPolicy(cfg.Content.PolicyPath)
	if err != nil {
		return nil, err
	}

	switch cfg.Content.Provider {
	case "openai":
		p, err := NewOpenAIProvider(OpenAIOptions{
			APIKey:         cfg.OpenAI.APIKey,
			Model:          cfg.OpenAI.Model,
			BaseURL:        cfg.OpenAI.BaseURL,
			Policy:         policy,
			ImageAllowlist: cfg.Content.ImageAllowlist,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "bedrock":
		p, err := NewBedrockProvider(ctx, BedrockOptions{
			Region:         cfg.Bedrock.Region,
			ModelID:        cfg.Bedrock.ModelID,
			Policy:         policy,
			ImageAllowlist: cfg.Content.ImageAllowlist,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("content: unknown provider %q", cfg.Content.Provider)
	}
}
