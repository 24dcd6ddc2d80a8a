package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dsatutor/internal/models"
	"dsatutor/internal/stream"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrInvalidHistory is returned when the history does not end with a user message.
var ErrInvalidHistory = errors.New("last message must be from the user")

// Service requests streamed completions from a chat model.
type Service struct {
	chatModel    model.BaseChatModel
	instructions string
}

func NewService(chatModel model.BaseChatModel) *Service {
	return &Service{chatModel: chatModel, instructions: SystemInstruction}
}

// StreamCompletion starts a response for history, which must end with the
// user message being answered.
func (s *Service) StreamCompletion(ctx context.Context, history []models.Message) (stream.Source, error) {
	if len(history) == 0 || history[len(history)-1].Role != models.RoleUser {
		return nil, ErrInvalidHistory
	}
	reader, err := s.chatModel.Stream(ctx, s.convertMessages(history))
	if err != nil {
		return nil, fmt.Errorf("generate Ai stream failed: %w", err)
	}
	return &FragmentReader{reader: reader}, nil
}

func (s *Service) convertMessages(history []models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	if s.instructions != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: s.instructions})
	}
	for _, msg := range history {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleModel:
			role = schema.Assistant
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}

// FragmentReader adapts an eino message stream to stream.Source.
type FragmentReader struct {
	reader *schema.StreamReader[*schema.Message]
}

// Recv returns the next non-empty text delta, or io.EOF once the stream ends.
func (r *FragmentReader) Recv() (string, error) {
	for {
		chunk, err := r.reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (r *FragmentReader) Close() {
	r.reader.Close()
}
