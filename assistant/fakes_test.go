package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	slacklib "github.com/slack-go/slack"

	"github.com/justmike1/intern/github"
	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/prompts"
)

var testPrompts = prompts.Default()

// fakeModel answers each request with respond and records what it was sent.
type fakeModel struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(req llm.Request) (*llm.Response, error)
}

func (f *fakeModel) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeModel) last() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func replyWith(content string) *fakeModel {
	return &fakeModel{respond: func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: content}, nil
	}}
}

func failWith(err error) *fakeModel {
	return &fakeModel{respond: func(llm.Request) (*llm.Response, error) {
		return nil, err
	}}
}

// stagedModel routes each request by the prompt it carries.
func stagedModel(summary, intents, answer string) *fakeModel {
	summarizePrefix := strings.SplitN(testPrompts.MustGet(prompts.Summarize), "\n", 2)[0]
	classifyPrefix := strings.SplitN(testPrompts.MustGet(prompts.Classify), "\n", 2)[0]
	return &fakeModel{respond: func(req llm.Request) (*llm.Response, error) {
		switch {
		case strings.HasPrefix(req.System, summarizePrefix):
			return &llm.Response{Content: summary}, nil
		case strings.HasPrefix(req.System, classifyPrefix):
			return &llm.Response{Content: intents}, nil
		default:
			return &llm.Response{Content: answer}, nil
		}
	}}
}

type post struct {
	Channel  string
	ThreadTS string
	Text     string
}

type fakeMessenger struct {
	mu        sync.Mutex
	posts     []post
	deleted   []string
	postErr   error
	deleteErr error
	failFirst bool
}

func (f *fakeMessenger) PostThreadReply(_ context.Context, channelID, threadTS, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst && len(f.posts) == 0 {
		f.failFirst = false
		return "", errors.New("channel_not_found")
	}
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posts = append(f.posts, post{Channel: channelID, ThreadTS: threadTS, Text: text})
	return fmt.Sprintf("9.%06d", len(f.posts)), nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ string, ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ts)
	return f.deleteErr
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.posts))
	for i, p := range f.posts {
		out[i] = p.Text
	}
	return out
}

type fakeThread struct {
	messages []slacklib.Message
	users    map[string]string
	err      error
}

func (f *fakeThread) FetchThreadReplies(context.Context, string, string, int) ([]slacklib.Message, error) {
	return f.messages, f.err
}

func (f *fakeThread) GetUserName(_ context.Context, userID string) (string, error) {
	if name, ok := f.users[userID]; ok {
		return name, nil
	}
	return "", errors.New("user_not_found")
}

func msg(user, ts, text string) slacklib.Message {
	var m slacklib.Message
	m.User = user
	m.Timestamp = ts
	m.Text = text
	return m
}

func botMsg(user, ts, text string) slacklib.Message {
	m := msg(user, ts, text)
	m.BotID = "B" + user
	return m
}

type fakeTracker struct {
	mu         sync.Mutex
	issues     map[string]*jira.Issue
	errs       map[string]error
	changelogs map[string]map[int]*jira.ChangelogPage
	calls      []string
}

func (f *fakeTracker) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTracker) FindIssue(ctx context.Context, key string) (*jira.Issue, error) {
	return f.GetIssue(ctx, key, nil, nil)
}

func (f *fakeTracker) GetIssue(_ context.Context, key string, fields, _ []string) (*jira.Issue, error) {
	f.record(fmt.Sprintf("issue %s %s", key, strings.Join(fields, ",")))
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if issue, ok := f.issues[key]; ok {
		cp := *issue
		return &cp, nil
	}
	return nil, &jira.Error{Op: "get issue", Key: key, StatusCode: 404, Err: errors.New("Issue does not exist or you do not have permission to see it.")}
}

func (f *fakeTracker) GetChangelog(_ context.Context, key string, startAt int) (*jira.ChangelogPage, error) {
	f.record(fmt.Sprintf("changelog %s %d", key, startAt))
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if page, ok := f.changelogs[key][startAt]; ok {
		return page, nil
	}
	return nil, &jira.Error{Op: "get changelog", Key: key, StatusCode: 404, Err: errors.New("not found")}
}

const testSiteURL = "https://acme.atlassian.net"

func (f *fakeTracker) BrowseURL(key string) string { return testSiteURL + "/browse/" + key }

type fakePRs struct {
	prs []github.PullRequest
	err error
}

func (f *fakePRs) FindPullRequests(context.Context, string, int) ([]github.PullRequest, error) {
	return f.prs, f.err
}

type fakeKeys struct {
	keys []string
	err  error
}

func (f *fakeKeys) ProjectKeys() ([]string, error) { return f.keys, f.err }

func cpg12() *jira.Issue {
	return &jira.Issue{
		Key:            "CPG-12",
		Browse:         "https://acme.atlassian.net/browse/CPG-12",
		Summary:        "Checkout times out",
		Status:         "In Progress",
		StatusCategory: "In Progress",
		Assignee:       "Alex Smith",
		Reporter:       "Dana Reyes",
		Comments: []jira.Comment{
			{Author: "Alex Smith", Body: "Looking into it", Created: "2024-05-01T10:00:00.000+0000"},
			{Author: "Dana Reyes", Body: "Any update?", Created: "2024-05-02T10:00:00.000+0000"},
		},
	}
}
