package slack

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack/slackevents"

	"github.com/justmike1/intern/logging"
)

// Event kinds the assistant reacts to.
const (
	KindMention       = "app_mention"
	KindDirectMessage = "message.im"
)

// Event is an actionable message addressed to the bot. ThreadTS is empty for
// a top-level channel mention.
type Event struct {
	Kind     string
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string
}

// EventHandler processes one event. It is called on its own goroutine.
type EventHandler func(ctx context.Context, ev Event)

// Dispatcher filters Events API payloads down to mentions and direct
// messages from people, and hands each to the handler. Both transports
// (Socket Mode and the HTTP Events API) share it.
type Dispatcher struct {
	botUserID string
	handler   EventHandler
	logger    *slog.Logger
}

func NewDispatcher(botUserID string, handler EventHandler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		botUserID: botUserID,
		handler:   handler,
		logger:    logging.OrDiscard(logger).With("component", "slack-events"),
	}
}

// Dispatch starts the handler for event if it is actionable and reports
// whether it did. ctx must outlive the delivering request.
func (d *Dispatcher) Dispatch(ctx context.Context, event slackevents.EventsAPIEvent) bool {
	if event.Type != slackevents.CallbackEvent {
		d.logger.Debug("skipping non-callback event", "type", event.Type)
		return false
	}
	ev, ok := d.toEvent(event.InnerEvent.Data)
	if !ok {
		return false
	}
	d.logger.Info("dispatching event",
		"kind", ev.Kind, "channel", ev.Channel, "user", ev.User, "thread_ts", ev.ThreadTS,
		"text", truncate(ev.Text, 80))
	go d.handler(ctx, ev)
	return true
}

func (d *Dispatcher) toEvent(data any) (Event, bool) {
	switch ev := data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == "" || ev.User == d.botUserID {
			return Event{}, false
		}
		// Mentions are answered in the thread they were made in. A top-level
		// mention carries no thread and is left alone.
		return Event{
			Kind:     KindMention,
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}, true

	case *slackevents.MessageEvent:
		if ev.ChannelType != "im" {
			return Event{}, false
		}
		if ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.User == d.botUserID {
			d.logger.Debug("skipping message", "sub_type", ev.SubType, "bot_id", ev.BotID, "user", ev.User)
			return Event{}, false
		}
		threadTS := ev.ThreadTimeStamp
		if threadTS == "" {
			threadTS = ev.TimeStamp
		}
		return Event{
			Kind:     KindDirectMessage,
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: threadTS,
		}, true

	default:
		d.logger.Debug("unhandled inner event", "type", typeOf(data))
		return Event{}, false
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
