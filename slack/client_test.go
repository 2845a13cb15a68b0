package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlack struct {
	mu     sync.Mutex
	calls  map[string][]map[string]string
	routes map[string]string
}

func newFakeSlack(t *testing.T, routes map[string]string) (*fakeSlack, *Client) {
	t.Helper()
	f := &fakeSlack{calls: make(map[string][]map[string]string), routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		method := r.URL.Path[1:]
		params := make(map[string]string)
		for k := range r.Form {
			params[k] = r.Form.Get(k)
		}
		f.mu.Lock()
		f.calls[method] = append(f.calls[method], params)
		f.mu.Unlock()

		body, ok := f.routes[method]
		if !ok {
			body = `{"ok":false,"error":"unknown_method"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return f, NewClient("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
}

func (f *fakeSlack) last(method string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[method]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

func TestPostThreadReplyAndDelete(t *testing.T) {
	f, c := newFakeSlack(t, map[string]string{
		"chat.postMessage": `{"ok":true,"channel":"C1","ts":"1700000000.000200"}`,
		"chat.delete":      `{"ok":true,"channel":"C1","ts":"1700000000.000200"}`,
	})
	ctx := context.Background()

	ts, err := c.PostThreadReply(ctx, "C1", "1700000000.000100", "thinking")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000200", ts)
	assert.Equal(t, "1700000000.000100", f.last("chat.postMessage")["thread_ts"])
	assert.Equal(t, "thinking", f.last("chat.postMessage")["text"])

	require.NoError(t, c.DeleteMessage(ctx, "C1", ts))
	assert.Equal(t, ts, f.last("chat.delete")["ts"])
}

func TestPostThreadReplyError(t *testing.T) {
	_, c := newFakeSlack(t, map[string]string{
		"chat.postMessage": `{"ok":false,"error":"channel_not_found"}`,
	})
	_, err := c.PostThreadReply(context.Background(), "C1", "1.0", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestFetchThreadReplies(t *testing.T) {
	f, c := newFakeSlack(t, map[string]string{
		"conversations.replies": `{"ok":true,"has_more":false,"messages":[
			{"type":"message","user":"U1","text":"root","ts":"1.000001"},
			{"type":"message","user":"UBOT","bot_id":"B1","text":"hi","ts":"1.000002"}
		]}`,
	})

	msgs, err := c.FetchThreadReplies(context.Background(), "C1", "1.000001", 1000)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "B1", msgs[1].BotID)
	assert.Equal(t, "1000", f.last("conversations.replies")["limit"])
}

func TestGetUserName(t *testing.T) {
	_, c := newFakeSlack(t, map[string]string{
		"users.info": `{"ok":true,"user":{"id":"U1","name":"dana","real_name":"Dana Reyes","profile":{"display_name":"dana.r"}}}`,
	})

	name, err := c.GetUserName(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "dana.r", name)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "", DisplayName(nil))
	assert.Equal(t, "Dana Reyes", DisplayName(&slack.User{Name: "dana", RealName: "Dana Reyes"}))
	assert.Equal(t, "dana", DisplayName(&slack.User{Name: "dana"}))
}

func TestGetBotUserID(t *testing.T) {
	_, c := newFakeSlack(t, map[string]string{
		"auth.test": `{"ok":true,"user_id":"UBOT","user":"intern"}`,
	})

	id, err := c.GetBotUserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UBOT", id)
}

func TestJoinPublicChannels(t *testing.T) {
	f, c := newFakeSlack(t, map[string]string{
		"conversations.list": `{"ok":true,"channels":[
			{"id":"C1","name":"general","is_member":true},
			{"id":"C2","name":"random","is_member":false}
		],"response_metadata":{"next_cursor":""}}`,
		"conversations.join": `{"ok":true,"channel":{"id":"C2","name":"random"}}`,
	})

	joined, err := c.JoinPublicChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, joined)
	assert.Equal(t, "C2", f.last("conversations.join")["channel"])
	assert.Equal(t, "public_channel", f.last("conversations.list")["types"])
}

func TestJoinPublicChannelsCollectsFailures(t *testing.T) {
	_, c := newFakeSlack(t, map[string]string{
		"conversations.list": `{"ok":true,"channels":[
			{"id":"C2","name":"random","is_member":false},
			{"id":"C3","name":"ops","is_member":false}
		],"response_metadata":{"next_cursor":""}}`,
		"conversations.join": `{"ok":false,"error":"method_not_supported_for_channel_type"}`,
	})

	joined, err := c.JoinPublicChannels(context.Background())
	require.Error(t, err)
	assert.Zero(t, joined)
	assert.Contains(t, err.Error(), "random")
	assert.Contains(t, err.Error(), "ops")
}
