package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/slack"
)

type botFixture struct {
	messenger *fakeMessenger
	thread    *fakeThread
	tracker   *fakeTracker
	model     *fakeModel
	deps      BotDeps
}

func newBotFixture(t *testing.T, model *fakeModel) *botFixture {
	t.Helper()
	f := &botFixture{
		messenger: &fakeMessenger{},
		thread: &fakeThread{
			messages: []slacklib.Message{
				msg("U1", "1700000000.000100", "<@UBOT> what's the status of CPG-12?"),
			},
			users: map[string]string{"U1": "dana"},
		},
		tracker: &fakeTracker{issues: map[string]*jira.Issue{"CPG-12": cpg12()}},
		model:   model,
	}
	f.deps = BotDeps{
		Messenger:  f.messenger,
		History:    NewHistoryFetcher(f.thread, 1000, "UBOT", nil),
		Summarizer: NewSummarizer(model, testPrompts, nil),
		Classifier: NewClassifier(model, testPrompts, nil),
		Issues:     NewIssueService(f.tracker, nil, nil),
		Composer:   NewComposer(model, testPrompts, testSiteURL, nil),
	}
	return f
}

var mentionEvent = slack.Event{
	Kind:     slack.KindMention,
	Channel:  "C1",
	User:     "U1",
	Text:     "<@UBOT> what's the status of CPG-12?",
	TS:       "1700000000.000100",
	ThreadTS: "1700000000.000100",
}

func TestBotAnswersStatusQuestion(t *testing.T) {
	model := stagedModel(
		"User asked for the status of CPG-12.",
		`{"intents":[{"name":"getStatus","parameters":[{"name":"ticketId","value":"CPG-12"}],"confidence":0.95}]}`,
		"<https://acme.atlassian.net/browse/CPG-12|CPG-12 (Checkout times out)> is **In Progress**.",
	)
	f := newBotFixture(t, model)

	stage := NewBot(f.deps, nil).Handle(context.Background(), mentionEvent)
	require.Equal(t, StageResponded, stage)

	assert.Equal(t, []string{
		ThinkingText,
		"<https://acme.atlassian.net/browse/CPG-12|CPG-12 (Checkout times out)> is *In Progress*.",
	}, f.messenger.texts())
	assert.Equal(t, []string{"9.000001"}, f.messenger.deleted)
	for _, p := range f.messenger.posts {
		assert.Equal(t, "1700000000.000100", p.ThreadTS)
	}

	composed := model.last().Messages[0].Content
	assert.Contains(t, composed, `"status": "In Progress"`)
	assert.Contains(t, composed, "The user who mentioned you is: dana")
}

func TestBotSkipsEventsWithoutThread(t *testing.T) {
	f := newBotFixture(t, replyWith("x"))
	ev := mentionEvent
	ev.ThreadTS = ""

	assert.Equal(t, StageSkipped, NewBot(f.deps, nil).Handle(context.Background(), ev))
	assert.Empty(t, f.messenger.texts())
	assert.Empty(t, f.model.requests)
}

func TestBotSummarizeFailure(t *testing.T) {
	f := newBotFixture(t, failWith(&llm.Error{Model: "gpt-4o-mini", StatusCode: 500, Err: errors.New("server error")}))

	stage := NewBot(f.deps, nil).Handle(context.Background(), mentionEvent)
	assert.Equal(t, StageFailed, stage)
	assert.Equal(t, []string{ThinkingText, FailureText}, f.messenger.texts())
	assert.Equal(t, []string{"9.000001"}, f.messenger.deleted)
}

func TestBotFailureLogsCompletedStages(t *testing.T) {
	f := newBotFixture(t, failWith(errors.New("server error")))
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.Equal(t, StageFailed, NewBot(f.deps, logger).Handle(context.Background(), mentionEvent))

	var entry struct {
		Msg       string   `json:"msg"`
		Stage     string   `json:"stage"`
		Completed []string `json:"completed"`
	}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry.Msg == "interaction failed" {
			break
		}
	}
	assert.Equal(t, "interaction failed", entry.Msg)
	assert.Equal(t, string(StageHistoryFetched), entry.Stage)
	assert.Equal(t, []string{string(StageThinking), string(StageHistoryFetched)}, entry.Completed)
}

func TestBotPlaceholderFailure(t *testing.T) {
	f := newBotFixture(t, replyWith("x"))
	f.messenger.failFirst = true

	stage := NewBot(f.deps, nil).Handle(context.Background(), mentionEvent)
	assert.Equal(t, StageFailed, stage)
	assert.Equal(t, []string{FailureText}, f.messenger.texts())
	assert.Empty(t, f.messenger.deleted, "no placeholder to delete")
	assert.Empty(t, f.model.requests)
}

func TestBotRecoversFromPanics(t *testing.T) {
	model := &fakeModel{respond: func(llm.Request) (*llm.Response, error) {
		panic("nil map write")
	}}
	f := newBotFixture(t, model)

	var stage Stage
	require.NotPanics(t, func() {
		stage = NewBot(f.deps, nil).Handle(context.Background(), mentionEvent)
	})
	assert.Equal(t, StageFailed, stage)
	assert.Equal(t, []string{ThinkingText, FailureText}, f.messenger.texts())
}

func TestBotDisabledAI(t *testing.T) {
	f := newBotFixture(t, replyWith("x"))
	f.deps.DisableAI = true

	assert.Equal(t, StageResponded, NewBot(f.deps, nil).Handle(context.Background(), mentionEvent))
	assert.Equal(t, []string{ThinkingText, DisabledText}, f.messenger.texts())
	assert.Empty(t, f.model.requests)
}

type staticKeys []string

func (k staticKeys) ExtractFromTexts(...string) []string { return k }

func TestBotFallsBackToKeyExtraction(t *testing.T) {
	model := stagedModel("User mentioned CPG-12.", `{"intents":[]}`, "CPG-12 is In Progress.")
	f := newBotFixture(t, model)
	f.deps.Keys = staticKeys{"CPG-12"}

	assert.Equal(t, StageResponded, NewBot(f.deps, nil).Handle(context.Background(), mentionEvent))
	composed := model.last().Messages[0].Content
	assert.Contains(t, composed, `"key": "CPG-12"`)
	assert.Contains(t, composed, `"assignee": "Alex Smith"`)
}

func TestBotFallbackWithoutKeys(t *testing.T) {
	model := stagedModel("Small talk.", `{"intents":[]}`, "Happy to help with Jira tickets!")
	f := newBotFixture(t, model)
	f.deps.Keys = staticKeys{}

	assert.Equal(t, StageResponded, NewBot(f.deps, nil).Handle(context.Background(), mentionEvent))
	assert.Contains(t, model.last().Messages[0].Content, "Intent results: []")
	assert.Empty(t, f.tracker.calls)
}

func TestBotAgentPipeline(t *testing.T) {
	summarizePrefix := "Summarize the following Slack conversation"
	model := &fakeModel{respond: func(req llm.Request) (*llm.Response, error) {
		switch {
		case len(req.System) >= len(summarizePrefix) && req.System[:len(summarizePrefix)] == summarizePrefix:
			return &llm.Response{Content: "User asked about CPG-12."}, nil
		case len(req.Tools) > 0:
			return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: ToolGetJiraIssue, Arguments: `{"issueIdOrKey":"CPG-12"}`}}}, nil
		default:
			return &llm.Response{Content: "CPG-12 is In Progress."}, nil
		}
	}}
	f := newBotFixture(t, model)
	f.deps.Agent = NewToolAgent(model, testPrompts, &fakeKeys{keys: []string{"CPG"}}, f.tracker, nil)

	assert.Equal(t, StageResponded, NewBot(f.deps, nil).Handle(context.Background(), mentionEvent))
	assert.Equal(t, []string{ThinkingText, "CPG-12 is In Progress."}, f.messenger.texts())
	assert.Contains(t, model.last().Messages[0].Content, `"callId": "call_1"`)
}

func TestBotReplyPostFailure(t *testing.T) {
	model := stagedModel("s", `{"intents":[]}`, "answer")
	f := newBotFixture(t, model)
	f.deps.Messenger = &flakyMessenger{fakeMessenger: f.messenger, failText: "answer"}

	assert.Equal(t, StageFailed, NewBot(f.deps, nil).Handle(context.Background(), mentionEvent))
	assert.Equal(t, []string{ThinkingText, FailureText}, f.messenger.texts())
}

// flakyMessenger rejects posts of one specific text.
type flakyMessenger struct {
	*fakeMessenger
	failText string
}

func (m *flakyMessenger) PostThreadReply(ctx context.Context, channelID, threadTS, text string) (string, error) {
	if text == m.failText {
		return "", errors.New("msg_too_long")
	}
	return m.fakeMessenger.PostThreadReply(ctx, channelID, threadTS, text)
}
