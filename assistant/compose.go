package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/justmike1/intern/logging"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/prompts"
)

// Slack mrkdwn bolds with a single asterisk.
var boldRun = regexp.MustCompile(`\*{2,}`)

// ApologyText is returned when the answer cannot be composed.
const ApologyText = "Sorry, I encountered an error while processing your request."

// ComposeInput is everything the composer knows about the request. Intents
// and Issues are serialized as-is; either may be empty.
type ComposeInput struct {
	Summary string
	Asker   string
	Intents []IntentResult
	Issues  []IssueRecord
	Tools   []ToolResult
}

// Composer turns fetched data into the final Slack reply.
type Composer struct {
	model   ChatModel
	prompts PromptProvider
	jiraURL string
	logger  *slog.Logger
}

func NewComposer(model ChatModel, p PromptProvider, jiraURL string, logger *slog.Logger) *Composer {
	return &Composer{
		model:   model,
		prompts: p,
		jiraURL: strings.TrimRight(jiraURL, "/"),
		logger:  logging.OrDiscard(logger).With("component", "composer"),
	}
}

// Compose never fails: any model error yields ApologyText.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) string {
	results, err := json.MarshalIndent(composeResults(in), "", "  ")
	if err != nil {
		c.logger.Error("failed to encode intent results", "error", err)
		return ApologyText
	}

	var user strings.Builder
	user.WriteString("User summary: ")
	user.WriteString(in.Summary)
	if in.Asker != "" {
		user.WriteString("\n\nThe user who mentioned you is: ")
		user.WriteString(in.Asker)
	}
	user.WriteString("\n\nIntent results: ")
	user.Write(results)

	resp, err := c.model.Chat(ctx, llm.Request{
		System:   c.prompts.Render(prompts.Compose, map[string]string{"jira_url": c.jiraURL}),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user.String()}},
	})
	if err != nil {
		c.logger.Error("failed to compose response", "error", err)
		return ApologyText
	}

	text := strings.TrimSpace(boldRun.ReplaceAllString(resp.Content, "*"))
	if text == "" {
		return ApologyText
	}
	return text
}

// composeResults picks the payload shape: intent results when the classifier
// produced any, otherwise the fallback records or the agent's tool results.
func composeResults(in ComposeInput) any {
	switch {
	case len(in.Intents) > 0:
		return in.Intents
	case len(in.Issues) > 0:
		return in.Issues
	case len(in.Tools) > 0:
		return in.Tools
	default:
		return []IntentResult{}
	}
}
