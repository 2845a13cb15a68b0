package assistant

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	slacklib "github.com/slack-go/slack"
	"github.com/sourcegraph/conc/iter"

	"github.com/justmike1/intern/logging"
)

const (
	// ThinkingText is the placeholder posted while a reply is being prepared.
	ThinkingText = "🤔 💭 ✨"
	// thinkingTextRaw is how Slack returns ThinkingText in message history.
	thinkingTextRaw = ":thinking_face: :thought_balloon: :sparkles:"

	// AssistantName stands in for the bot in history and mentions.
	AssistantName = "assistant"

	// MinHistoryLimit is the smallest page the thread fetch may ask for.
	MinHistoryLimit = 1000
)

var mentionPattern = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`)

// Message is one normalized thread message.
type Message struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"message"`
}

// HistoryFetcher collects a thread as an ordered list of Messages with user
// mentions resolved to names.
type HistoryFetcher struct {
	source    ThreadSource
	limit     int
	botUserID string
	logger    *slog.Logger
}

// NewHistoryFetcher builds a fetcher. botUserID may be empty, in which case
// the bot is recognized as the author of the first bot-flagged message.
func NewHistoryFetcher(source ThreadSource, limit int, botUserID string, logger *slog.Logger) *HistoryFetcher {
	if limit < MinHistoryLimit {
		limit = MinHistoryLimit
	}
	return &HistoryFetcher{
		source:    source,
		limit:     limit,
		botUserID: botUserID,
		logger:    logging.OrDiscard(logger).With("component", "history"),
	}
}

// Fetch returns the thread rooted at threadTS sorted by timestamp. It never
// fails: a missing thread or any Slack error yields an empty list.
func (f *HistoryFetcher) Fetch(ctx context.Context, channelID, threadTS string) []Message {
	if threadTS == "" {
		return []Message{}
	}

	raw, err := f.source.FetchThreadReplies(ctx, channelID, threadTS, f.limit)
	if err != nil {
		f.logger.Warn("failed to fetch thread history", "channel", channelID, "thread_ts", threadTS, "error", err)
		return []Message{}
	}
	if len(raw) == 0 {
		return []Message{}
	}

	botID := f.botUserID
	if botID == "" {
		botID = firstBotUser(raw)
	}
	names := f.resolveNames(ctx, raw, botID)

	sorted := make([]slacklib.Message, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareTimestamps(sorted[i].Timestamp, sorted[j].Timestamp) < 0
	})

	out := make([]Message, 0, len(sorted))
	for _, m := range sorted {
		text := messageText(m)
		if text == "" || isThinking(text) {
			continue
		}
		out = append(out, Message{
			Sender:    senderName(m, botID, names),
			Timestamp: m.Timestamp,
			Text:      rewriteMentions(text, botID, names),
		})
	}
	return out
}

// resolveNames looks up every sender and mentioned id concurrently. A failed
// lookup falls back to the raw id.
func (f *HistoryFetcher) resolveNames(ctx context.Context, msgs []slacklib.Message, botID string) map[string]string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" || id == botID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, m := range msgs {
		add(m.User)
		for _, match := range mentionPattern.FindAllStringSubmatch(m.Text, -1) {
			add(match[1])
		}
	}

	resolved := iter.Map(ids, func(id *string) string {
		name, err := f.source.GetUserName(ctx, *id)
		if err != nil || name == "" {
			f.logger.Debug("user lookup failed, using raw id", "user", *id, "error", err)
			return *id
		}
		return name
	})

	names := make(map[string]string, len(ids)+1)
	for i, id := range ids {
		names[id] = resolved[i]
	}
	if botID != "" {
		names[botID] = AssistantName
	}
	return names
}

func firstBotUser(msgs []slacklib.Message) string {
	for _, m := range msgs {
		if m.BotID != "" && m.User != "" {
			return m.User
		}
	}
	return ""
}

func senderName(m slacklib.Message, botID string, names map[string]string) string {
	switch {
	case m.User != "" && m.User == botID:
		return AssistantName
	case m.User != "":
		if name, ok := names[m.User]; ok {
			return name
		}
		return m.User
	case m.Username != "":
		return m.Username
	case m.BotID != "":
		return m.BotID
	default:
		return "Unknown User"
	}
}

func rewriteMentions(text, botID string, names map[string]string) string {
	return mentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := mentionPattern.FindStringSubmatch(match)[1]
		if id == botID {
			return "@" + AssistantName
		}
		if name, ok := names[id]; ok {
			return "@" + name
		}
		return "@" + id
	})
}

// messageText joins a message's text with the content of its attachments,
// where link unfurls (Jira's included) put the issue key and title.
func messageText(m slacklib.Message) string {
	var parts []string
	if t := strings.TrimSpace(m.Text); t != "" {
		parts = append(parts, t)
	}
	for _, att := range m.Attachments {
		var attParts []string
		if att.Pretext != "" {
			attParts = append(attParts, att.Pretext)
		}
		if att.Title != "" {
			title := att.Title
			if att.TitleLink != "" {
				title += " (" + att.TitleLink + ")"
			}
			attParts = append(attParts, title)
		}
		if att.Text != "" {
			attParts = append(attParts, att.Text)
		}
		for _, f := range att.Fields {
			attParts = append(attParts, f.Title+": "+f.Value)
		}
		if len(attParts) == 0 && att.Fallback != "" {
			attParts = append(attParts, att.Fallback)
		}
		if len(attParts) > 0 {
			parts = append(parts, strings.Join(attParts, "\n"))
		}
	}
	return strings.Join(parts, "\n---\n")
}

func isThinking(text string) bool {
	return text == ThinkingText || text == thinkingTextRaw
}

// compareTimestamps orders Slack "seconds.micros" timestamps numerically.
// Unparseable values fall back to string order.
func compareTimestamps(a, b string) int {
	as, af, okA := splitTimestamp(a)
	bs, bf, okB := splitTimestamp(b)
	if !okA || !okB {
		return strings.Compare(a, b)
	}
	switch {
	case as != bs:
		if as < bs {
			return -1
		}
		return 1
	case af != bf:
		if af < bf {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func splitTimestamp(ts string) (int64, int64, bool) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if fracPart == "" {
		return sec, 0, true
	}
	// Right-pad so ".5" and ".500000" compare equal.
	for len(fracPart) < 6 {
		fracPart += "0"
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return sec, frac, true
}
