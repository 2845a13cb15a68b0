package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/justmike1/intern/logging"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/prompts"
)

// Summarizer condenses a thread into the context used by every later stage.
type Summarizer struct {
	model   ChatModel
	prompts PromptProvider
	logger  *slog.Logger
}

func NewSummarizer(model ChatModel, p PromptProvider, logger *slog.Logger) *Summarizer {
	return &Summarizer{
		model:   model,
		prompts: p,
		logger:  logging.OrDiscard(logger).With("component", "summarizer"),
	}
}

// Summarize returns a plain-text summary of history. Model errors are
// returned to the caller.
func (s *Summarizer) Summarize(ctx context.Context, history []Message) (string, error) {
	if history == nil {
		history = []Message{}
	}
	conversation, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode conversation: %w", err)
	}

	system := s.prompts.Render(prompts.Summarize, map[string]string{"conversation": string(conversation)})
	resp, err := s.model.Chat(ctx, llm.Request{System: system})
	if err != nil {
		return "", fmt.Errorf("summarize thread: %w", err)
	}

	summary := strings.TrimSpace(resp.Content)
	s.logger.Debug("thread summarized", "messages", len(history), "summary_chars", len(summary))
	return summary, nil
}
