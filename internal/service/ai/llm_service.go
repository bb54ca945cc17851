package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-companion/backend/internal/config"
	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/service/backend"
)

const historyLimit = 10

// Service generates companion replies locally through an eino chain. It
// implements backend.Replier.
type Service struct {
	personas persona.Store
	prompts  *PersonaPromptManager
	chain    compose.Runnable[map[string]any, *schema.Message]
	logger   *slog.Logger
}

var _ backend.Replier = (*Service)(nil)

// NewService creates a new AI service backed by the Ark chat model.
func NewService(ctx context.Context, personas persona.Store, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, personas, chatModel)
}

// NewServiceWithModel builds the chain around an arbitrary chat model.
func NewServiceWithModel(ctx context.Context, personas persona.Store, chatModel model.BaseChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		personas: personas,
		prompts:  NewPersonaPromptManager(),
		chain:    runnable,
		logger:   slog.Default().With("component", "ai"),
	}, nil
}

// Reply generates the raw, tag-annotated reply for req.
func (s *Service) Reply(ctx context.Context, req backend.Request) (chat.Reply, error) {
	p, ok := s.personas.FindByID(req.PersonaID)
	if !ok {
		p = persona.Persona{ID: req.PersonaID}
	}

	response, err := s.chain.Invoke(ctx, s.buildChainInput(&p, req.History, req.Message))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Info("generated response", "session_id", req.SessionID, "persona", p.ID, "length", len(response.Content))
	return chat.Reply{Message: response.Content}, nil
}

func (s *Service) buildChainInput(p *persona.Persona, history []chat.TranscriptEntry, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(p),
		"history": buildHistoryMessages(history),
		"query":   userMessage,
	}
}

func buildHistoryMessages(entries []chat.TranscriptEntry) []*schema.Message {
	if len(entries) == 0 {
		return nil
	}

	start := 0
	if len(entries) > historyLimit {
		start = len(entries) - historyLimit
	}

	history := make([]*schema.Message, 0, len(entries)-start)
	for _, entry := range entries[start:] {
		switch entry.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(entry.Text))
		case chat.SenderAgent:
			history = append(history, schema.AssistantMessage(entry.Text, nil))
		}
	}
	return history
}
