package ai

import (
	"context"
	"fmt"

	"dsatutor/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the gemini provider has no model configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// ModelOptions tunes provider specific knobs.
type ModelOptions struct {
	// DisableThinking turns off gemini thinking, used for short utility prompts.
	DisableThinking bool
	MaxTokens       int
}

// NewChatModel builds the eino chat model for provider. token falls back to
// the provider's configured api key.
func NewChatModel(ctx context.Context, provider string, prov config.ProviderConfig, token string, opts ModelOptions) (model.BaseChatModel, error) {
	if token == "" {
		token = prov.APIKey
	}
	modelName := prov.Model

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: prov.BaseURL,
			Model:   modelName,
			APIKey:  token,
		})
	case "gemini":
		if modelName == "" {
			modelName = DefaultGeminiModel
		}
		client, clientErr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  token,
			Backend: genai.BackendGeminiAPI,
		})
		if clientErr != nil {
			return nil, fmt.Errorf("create gemini client: %w", clientErr)
		}
		thinking := &genai.ThinkingConfig{IncludeThoughts: false}
		if opts.DisableThinking {
			budget := int32(0)
			thinking.ThinkingBudget = &budget
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:         client,
			Model:          modelName,
			ThinkingConfig: thinking,
		})
	case "claude":
		var baseURLPtr *string
		if prov.BaseURL != "" {
			baseURLPtr = &prov.BaseURL
		}
		maxTokens := opts.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 3000
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    token,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}
