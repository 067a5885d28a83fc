package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/martialartscode/pta-portal/backend/internal/config"
	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
)

const historyLimit = 10

const defaultAcademyPrompt = `You are the front desk assistant of a martial arts academy website.
No instructor is online right now. Greet the visitor, acknowledge their question in one or two short sentences and tell them a staff member will follow up in this chat.
Never invent class times, prices or policies.`

// Composer drafts auto-replies with an Ark chat model behind an eino chain.
type Composer struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string
	logger *slog.Logger
}

// NewComposerFromConfig builds the Ark model described by cfg and wraps it.
func NewComposerFromConfig(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*Composer, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewComposer(ctx, chatModel, cfg.SystemPrompt, logger)
}

// NewComposer compiles the prompt chain around chatModel. An empty system
// prompt selects the built-in academy prompt.
func NewComposer(ctx context.Context, chatModel model.ChatModel, system string, logger *slog.Logger) (*Composer, error) {
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

	if strings.TrimSpace(system) == "" {
		system = defaultAcademyPrompt
	}
	return &Composer{chain: runnable, system: system, logger: logger}, nil
}

// ComposeAutoReply drafts the reply to the session's latest visitor message.
// The configured fallback is offered to the model as the house style.
func (c *Composer) ComposeAutoReply(ctx context.Context, session chat.Session, fallback string) (string, error) {
	input, ok := c.buildChainInput(session, fallback)
	if !ok {
		return fallback, nil
	}

	response, err := c.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	text := clip(strings.TrimSpace(response.Content), chat.MaxAutoResponseMessage)
	c.logger.Info("auto-reply drafted", "session_id", session.ID, "length", len(text))
	return text, nil
}

func (c *Composer) buildChainInput(session chat.Session, fallback string) (map[string]any, bool) {
	last := -1
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].From == chat.SenderVisitor {
			last = i
			break
		}
	}
	if last < 0 {
		return nil, false
	}

	system := c.system
	if fallback != "" {
		system += "\n\nThe academy's standard away message is: " + fallback
	}

	return map[string]any{
		"system":  system,
		"history": buildHistoryMessages(session.Messages[:last]),
		"query":   session.Messages[last].Text,
	}, true
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.From {
		case chat.SenderVisitor:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderAdmin:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
