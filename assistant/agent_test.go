package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/llm"
)

func toolCalls(calls ...llm.ToolCall) *fakeModel {
	return &fakeModel{respond: func(llm.Request) (*llm.Response, error) {
		return &llm.Response{ToolCalls: calls}, nil
	}}
}

func TestToolAgentRunsToolCalls(t *testing.T) {
	model := toolCalls(
		llm.ToolCall{ID: "call_1", Name: ToolGetJiraIssue, Arguments: `{"issueIdOrKey":"cpg-12","fields":"summary, status"}`},
		llm.ToolCall{ID: "call_2", Name: ToolGetIssueChangelog, Arguments: `{"issueNumber":"CPG-12"}`},
		llm.ToolCall{ID: "call_3", Name: ToolGetJiraIssue, Arguments: `{"issueIdOrKey":"CPG-404"}`},
		llm.ToolCall{ID: "call_4", Name: "deleteIssue", Arguments: `{}`},
	)
	tracker := &fakeTracker{
		issues: map[string]*jira.Issue{"CPG-12": cpg12()},
		changelogs: map[string]map[int]*jira.ChangelogPage{
			"CPG-12": {0: {MaxResults: 100, Total: 1, IsLast: true, Histories: histories(1, 1)}},
		},
	}
	agent := NewToolAgent(model, testPrompts, &fakeKeys{keys: []string{"CPG", "OPS"}}, tracker, nil)

	results, err := agent.Run(context.Background(), "User asked what changed on CPG-12.")
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "call_1", results[0].CallID)
	assert.Equal(t, "CPG-12", results[0].Key)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "In Progress", results[0].Data.(*jira.Issue).Status)

	assert.IsType(t, &jira.ChangelogPage{}, results[1].Data)
	assert.Equal(t, "Jira issue CPG-404 does not exist or you don't have permission to access it.", results[2].Error)
	assert.Equal(t, "Error: Unknown tool: deleteIssue", results[3].Error)

	assert.Contains(t, tracker.calls, "issue CPG-12 summary,status")

	req := model.last()
	require.Len(t, req.Tools, 2)
	assert.Contains(t, req.System, "The Jira project keys are: CPG, OPS")
	assert.Contains(t, req.System, "The Slack thread summary is: User asked what changed on CPG-12.")
}

func TestToolAgentNoToolCalls(t *testing.T) {
	agent := NewToolAgent(replyWith("Nothing to look up."), testPrompts, &fakeKeys{keys: []string{"CPG"}}, &fakeTracker{}, nil)
	results, err := agent.Run(context.Background(), "s")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestToolAgentErrors(t *testing.T) {
	agent := NewToolAgent(replyWith("x"), testPrompts, &fakeKeys{err: jira.ErrNotInitialized}, &fakeTracker{}, nil)
	_, err := agent.Run(context.Background(), "s")
	assert.ErrorIs(t, err, jira.ErrNotInitialized)

	cause := errors.New("overloaded")
	agent = NewToolAgent(failWith(cause), testPrompts, &fakeKeys{keys: []string{"CPG"}}, &fakeTracker{}, nil)
	_, err = agent.Run(context.Background(), "s")
	assert.ErrorIs(t, err, cause)
}

func TestToolAgentBadArguments(t *testing.T) {
	model := toolCalls(
		llm.ToolCall{ID: "call_1", Name: ToolGetJiraIssue, Arguments: `not json`},
		llm.ToolCall{ID: "call_2", Name: ToolGetIssueChangelog, Arguments: `{}`},
	)
	agent := NewToolAgent(model, testPrompts, &fakeKeys{keys: []string{"CPG"}}, &fakeTracker{}, nil)

	results, err := agent.Run(context.Background(), "s")
	require.NoError(t, err)
	assert.Contains(t, results[0].Error, "invalid arguments")
	assert.Equal(t, "Missing required parameter: issueNumber", results[1].Error)
}

func TestListArg(t *testing.T) {
	assert.Equal(t, []string{"summary", "status"}, listArg("summary, status,"))
	assert.Equal(t, []string{"changelog"}, listArg([]any{"changelog", 3, " "}))
	assert.Nil(t, listArg(nil))
}
