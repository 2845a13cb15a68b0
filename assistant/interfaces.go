package assistant

import (
	"context"

	slacklib "github.com/slack-go/slack"

	"github.com/justmike1/intern/github"
	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/llm"
)

// Messenger posts and removes thread replies.
type Messenger interface {
	PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error)
	DeleteMessage(ctx context.Context, channelID, ts string) error
}

// ThreadSource reads a thread and resolves user ids to names.
type ThreadSource interface {
	FetchThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]slacklib.Message, error)
	GetUserName(ctx context.Context, userID string) (string, error)
}

// ChatModel runs a chat completion.
type ChatModel interface {
	Chat(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// IssueTracker is the Jira surface the assistant reads from.
type IssueTracker interface {
	FindIssue(ctx context.Context, key string) (*jira.Issue, error)
	GetIssue(ctx context.Context, key string, fields, expand []string) (*jira.Issue, error)
	GetChangelog(ctx context.Context, key string, startAt int) (*jira.ChangelogPage, error)
	BrowseURL(key string) string
}

// PullRequestFinder looks up pull requests that mention an issue key.
type PullRequestFinder interface {
	FindPullRequests(ctx context.Context, issueKey string, limit int) ([]github.PullRequest, error)
}

// PromptProvider abstracts access to the system prompts.
type PromptProvider interface {
	MustGet(key string) string
	Render(key string, vars map[string]string) string
}
