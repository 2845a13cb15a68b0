package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/justmike1/intern/logging"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/prompts"
)

// Tool names offered to the model.
const (
	ToolGetJiraIssue      = "getJiraIssue"
	ToolGetIssueChangelog = "getIssueChangelog"
)

// KeySource exposes the registry's project keys.
type KeySource interface {
	ProjectKeys() ([]string, error)
}

var agentTools = []llm.Tool{
	{
		Name:        ToolGetJiraIssue,
		Description: "Get details about a Jira issue",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"issueIdOrKey": map[string]any{
					"type":        "string",
					"description": `The ID or key of the issue to get e.g. "SE-123"`,
				},
				"fields": map[string]any{
					"type":        "string",
					"description": "A comma-separated list of fields to return. By default, all navigable fields are returned.",
				},
				"expand": map[string]any{
					"type":        "string",
					"description": "A comma-separated list of the parameters to expand.",
				},
			},
			"required": []string{"issueIdOrKey"},
		},
	},
	{
		Name:        ToolGetIssueChangelog,
		Description: "List all changes for an issue, sorted by date, starting from the latest",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"issueNumber": map[string]any{
					"type":        "string",
					"description": `The issue number to search for including the project key e.g. "SE-123"`,
				},
				"startAt": map[string]any{
					"type":        "number",
					"description": "optional starting index number",
				},
			},
			"required": []string{"issueNumber"},
		},
	},
}

// ToolResult is the outcome of one tool call requested by the model.
type ToolResult struct {
	Tool   string `json:"tool"`
	CallID string `json:"callId"`
	Key    string `json:"key,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ToolAgent lets the model pick which Jira reads to run for a summary. It
// runs a single tool-calling round.
type ToolAgent struct {
	model   ChatModel
	prompts PromptProvider
	keys    KeySource
	tracker IssueTracker
	logger  *slog.Logger
}

func NewToolAgent(model ChatModel, p PromptProvider, keys KeySource, tracker IssueTracker, logger *slog.Logger) *ToolAgent {
	return &ToolAgent{
		model:   model,
		prompts: p,
		keys:    keys,
		tracker: tracker,
		logger:  logging.OrDiscard(logger).With("component", "agent"),
	}
}

// Run asks the model for tool calls and executes them concurrently. Only a
// failed model call or an uninitialized registry is an error; tool failures
// are returned as results.
func (a *ToolAgent) Run(ctx context.Context, summary string) ([]ToolResult, error) {
	keys, err := a.keys.ProjectKeys()
	if err != nil {
		return nil, fmt.Errorf("agent project keys: %w", err)
	}

	system := a.prompts.Render(prompts.Agent, map[string]string{
		"project_keys": strings.Join(keys, ", "),
		"summary":      summary,
	})
	resp, err := a.model.Chat(ctx, llm.Request{System: system, Tools: agentTools})
	if err != nil && !errors.Is(err, llm.ErrEmptyResponse) {
		return nil, fmt.Errorf("agent tool selection: %w", err)
	}
	if resp == nil || len(resp.ToolCalls) == 0 {
		a.logger.Debug("agent requested no tools")
		return []ToolResult{}, nil
	}

	results := iter.Map(resp.ToolCalls, func(call *llm.ToolCall) ToolResult {
		return a.runTool(ctx, *call)
	})
	a.logger.Debug("agent tools completed", "calls", len(results))
	return results, nil
}

func (a *ToolAgent) runTool(ctx context.Context, call llm.ToolCall) ToolResult {
	res := ToolResult{Tool: call.Name, CallID: call.ID}

	var args struct {
		IssueIDOrKey string `json:"issueIdOrKey"`
		Fields       any    `json:"fields"`
		Expand       any    `json:"expand"`
		IssueNumber  string `json:"issueNumber"`
		StartAt      int    `json:"startAt"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		res.Error = fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
		return res
	}

	switch call.Name {
	case ToolGetJiraIssue:
		res.Key = strings.ToUpper(strings.TrimSpace(args.IssueIDOrKey))
		if res.Key == "" {
			res.Error = "Missing required parameter: issueIdOrKey"
			break
		}
		issue, err := a.tracker.GetIssue(ctx, res.Key, listArg(args.Fields), listArg(args.Expand))
		if err != nil {
			res.Error = issueReason(res.Key, err)
			break
		}
		res.Data = shapeIssue(issue)

	case ToolGetIssueChangelog:
		res.Key = strings.ToUpper(strings.TrimSpace(args.IssueNumber))
		if res.Key == "" {
			res.Error = "Missing required parameter: issueNumber"
			break
		}
		page, err := a.tracker.GetChangelog(ctx, res.Key, max(args.StartAt, 0))
		if err != nil {
			res.Error = changelogReason(res.Key, err)
			break
		}
		res.Data = page

	default:
		res.Error = "Error: Unknown tool: " + call.Name
	}

	if res.Error != "" {
		a.logger.Warn("tool call failed", "tool", call.Name, "key", res.Key, "reason", res.Error)
	}
	return res
}

// listArg accepts either a comma-separated string or a JSON array of strings.
func listArg(v any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			add(part)
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}
