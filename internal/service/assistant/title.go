package assistant

import (
	"context"
	"fmt"
	"strings"

	"dsatutor/internal/logger"
	"dsatutor/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const titlePrompt = "Generate a short, concise title (5 words or less) for the following user query: \"%s\""

// TitleGenerator names a session after its first user message.
type TitleGenerator struct {
	chatModel model.BaseChatModel
}

func NewTitleGenerator(chatModel model.BaseChatModel) *TitleGenerator {
	return &TitleGenerator{chatModel: chatModel}
}

// SummarizeTitle asks the model for a title. Failures and empty answers yield
// the placeholder title; they are logged, never returned.
func (tg *TitleGenerator) SummarizeTitle(ctx context.Context, seed string) string {
	if strings.TrimSpace(seed) == "" {
		return models.DefaultTitle
	}
	resp, err := tg.chatModel.Generate(ctx, []*schema.Message{
		schema.UserMessage(fmt.Sprintf(titlePrompt, seed)),
	})
	if err != nil {
		logger.Log.Warnf("generate title failed: %v", err)
		return models.DefaultTitle
	}
	if resp == nil {
		return models.DefaultTitle
	}
	title := CleanTitle(resp.Content)
	if title == "" {
		logger.Log.Warnf("generate title returned empty content")
		return models.DefaultTitle
	}
	return title
}

// CleanTitle strips quotes and markdown emphasis and keeps the first line.
func CleanTitle(raw string) string {
	title := strings.ReplaceAll(raw, `"`, "")
	title = strings.TrimSpace(title)
	if i := strings.IndexAny(title, "\r\n"); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.Trim(title, "*#` ")
	return strings.TrimSpace(title)
}
