package slack

import (
	"context"
	"log"
	"log/slog"
	"os"
	"sync/atomic"

	slacklib "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/justmike1/intern/logging"
)

// SocketListener connects to Slack via Socket Mode (outbound WebSocket) and
// feeds Events API payloads to a Dispatcher. No inbound URL configuration is
// needed.
type SocketListener struct {
	smClient   *socketmode.Client
	dispatcher *Dispatcher
	logger     *slog.Logger
	debug      bool
	connected  atomic.Bool
	eventCount atomic.Int64
}

// NewSocketListener creates a Socket Mode listener.
// appToken is the app-level token (xapp-...) with connections:write scope.
// Set env SOCKET_MODE_DEBUG=1 to enable verbose wire-level logging.
func NewSocketListener(appToken, botToken string, dispatcher *Dispatcher, logger *slog.Logger) *SocketListener {
	debug := os.Getenv("SOCKET_MODE_DEBUG") == "1"

	apiOpts := []slacklib.Option{slacklib.OptionAppLevelToken(appToken)}
	if debug {
		apiOpts = append(apiOpts,
			slacklib.OptionDebug(true),
			slacklib.OptionLog(log.New(os.Stdout, "[slack-api] ", log.LstdFlags)))
	}
	api := slacklib.New(botToken, apiOpts...)

	var smOpts []socketmode.Option
	if debug {
		smOpts = append(smOpts,
			socketmode.OptionDebug(true),
			socketmode.OptionLog(log.New(os.Stdout, "[socket-wire] ", log.LstdFlags)))
	}

	return &SocketListener{
		smClient:   socketmode.New(api, smOpts...),
		dispatcher: dispatcher,
		logger:     logging.OrDiscard(logger).With("component", "socket-mode"),
		debug:      debug,
	}
}

// Run connects and processes events until ctx is cancelled. It reconnects
// automatically on disconnection.
func (sl *SocketListener) Run(ctx context.Context) error {
	go sl.handleEvents(ctx)

	sl.logger.Info("connecting to Slack", "debug", sl.debug)
	return sl.smClient.RunContext(ctx)
}

func (sl *SocketListener) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sl.smClient.Events:
			if !ok {
				sl.logger.Info("event channel closed, listener stopped")
				return
			}
			sl.handleEvent(ctx, evt)
		}
	}
}

func (sl *SocketListener) handleEvent(ctx context.Context, evt socketmode.Event) {
	sl.eventCount.Add(1)

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		if sl.connected.Load() {
			sl.logger.Info("reconnecting")
		}

	case socketmode.EventTypeConnected:
		if !sl.connected.Swap(true) {
			sl.logger.Info("connected", "events_processed", sl.eventCount.Load())
		}

	case socketmode.EventTypeConnectionError:
		sl.connected.Store(false)
		sl.logger.Warn("connection error, will retry")

	case socketmode.EventTypeHello:
		sl.logger.Debug("received hello from Slack")

	case socketmode.EventTypeEventsAPI:
		// Acknowledge first so Slack does not redeliver while we work.
		sl.ack(evt)
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			sl.logger.Warn("unexpected EventsAPI payload, skipping", "data_type", typeOf(evt.Data))
			return
		}
		sl.dispatcher.Dispatch(ctx, eventsAPIEvent)

	default:
		sl.logger.Debug("unhandled event type", "type", evt.Type, "data_type", typeOf(evt.Data))
		sl.ack(evt)
	}
}

func (sl *SocketListener) ack(evt socketmode.Event) {
	if evt.Request != nil {
		sl.smClient.Ack(*evt.Request)
	}
}
