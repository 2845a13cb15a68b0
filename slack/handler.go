package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	slacklib "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/justmike1/intern/logging"
)

const maxEventBody = 1 << 20

// EventsHandler serves the HTTP Events API endpoint: it verifies the request
// signature, answers url_verification challenges and dispatches callbacks.
type EventsHandler struct {
	signingSecret string
	dispatcher    *Dispatcher
	baseCtx       context.Context
	logger        *slog.Logger
}

// NewEventsHandler builds the handler. Dispatched work runs under baseCtx
// rather than the request context, which ends as soon as Slack is answered.
func NewEventsHandler(baseCtx context.Context, signingSecret string, dispatcher *Dispatcher, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		signingSecret: signingSecret,
		dispatcher:    dispatcher,
		baseCtx:       baseCtx,
		logger:        logging.OrDiscard(logger).With("component", "events-api"),
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	verifier, err := slacklib.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		h.logger.Warn("failed to create secrets verifier", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.TeeReader(io.LimitReader(r.Body, maxEventBody), &verifier))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := verifier.Ensure(); err != nil {
		h.logger.Warn("signature verification failed", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Warn("failed to parse event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		challenge, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)
		// Slack redelivers when we are slow to answer; the first delivery is
		// already being handled.
		if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
			h.logger.Info("ignoring redelivery", "retry", retry, "reason", r.Header.Get("X-Slack-Retry-Reason"))
			return
		}
		h.dispatcher.Dispatch(h.baseCtx, event)

	default:
		w.WriteHeader(http.StatusOK)
		h.logger.Debug("ignoring event", "type", event.Type)
	}
}

func typeOf(v any) string {
	return fmt.Sprintf("%T", v)
}
