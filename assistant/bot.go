package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/justmike1/intern/logging"
	"github.com/justmike1/intern/slack"
)

// Stage is a step of one interaction. Handle returns the last stage reached.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageThinking        Stage = "thinking"
	StageHistoryFetched  Stage = "history_fetched"
	StageSummarized      Stage = "summarized"
	StageIntentsDetected Stage = "intents_detected"
	StageDataFetched     Stage = "data_fetched"
	StageResponded       Stage = "responded"
	StageFailed          Stage = "failed"
	StageSkipped         Stage = "skipped"
)

const (
	// FailureText is posted when an interaction fails.
	FailureText = "Oops! Something went wrong while processing your request. Please try again later."
	// DisabledText is posted instead of an answer when AI replies are off.
	DisabledText = "AI responses are currently disabled."
)

// KeyFinder pulls issue keys out of free text.
type KeyFinder interface {
	ExtractFromTexts(texts ...string) []string
}

// BotDeps wires the pipeline stages. Agent replaces the classifier and the
// intent execution when set. Keys enables the key-extraction fallback used
// when no intent survives classification.
type BotDeps struct {
	Messenger  Messenger
	History    *HistoryFetcher
	Summarizer *Summarizer
	Classifier *Classifier
	Issues     *IssueService
	Composer   *Composer
	Agent      *ToolAgent
	Keys       KeyFinder
	DisableAI  bool
}

// Bot answers one Slack event at a time, end to end.
type Bot struct {
	deps   BotDeps
	logger *slog.Logger
}

func NewBot(deps BotDeps, logger *slog.Logger) *Bot {
	return &Bot{
		deps:   deps,
		logger: logging.OrDiscard(logger).With("component", "bot"),
	}
}

// HandleEvent adapts Handle to slack.EventHandler.
func (b *Bot) HandleEvent(ctx context.Context, ev slack.Event) {
	b.Handle(ctx, ev)
}

// Handle runs the pipeline for ev and returns the terminal stage. It never
// panics and never returns an error: failures are logged and answered with
// FailureText.
func (b *Bot) Handle(ctx context.Context, ev slack.Event) (stage Stage) {
	log := b.logger.With(
		"interaction_id", uuid.NewString(),
		"channel", ev.Channel,
		"thread_ts", ev.ThreadTS,
		"kind", ev.Kind,
	)
	if ev.ThreadTS == "" {
		log.Debug("event has no thread, skipping")
		return StageSkipped
	}

	start := time.Now()
	tr := NewTranscript()
	stage = StageIdle
	var placeholderTS string

	defer func() {
		if r := recover(); r != nil {
			stage = b.fail(ctx, log, ev, placeholderTS, tr, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	ts, err := b.deps.Messenger.PostThreadReply(ctx, ev.Channel, ev.ThreadTS, ThinkingText)
	if err != nil {
		return b.fail(ctx, log, ev, "", tr, stage, fmt.Errorf("post placeholder: %w", err))
	}
	placeholderTS = ts
	stage = StageThinking
	tr.Add(stage, "placeholder %s", ts)

	if b.deps.DisableAI {
		if err := b.reply(ctx, log, ev, placeholderTS, DisabledText); err != nil {
			return b.fail(ctx, log, ev, "", tr, stage, err)
		}
		return StageResponded
	}

	history := b.deps.History.Fetch(ctx, ev.Channel, ev.ThreadTS)
	stage = StageHistoryFetched
	tr.Add(stage, "%d messages", len(history))

	summary, err := b.deps.Summarizer.Summarize(ctx, history)
	if err != nil {
		return b.fail(ctx, log, ev, placeholderTS, tr, stage, err)
	}
	stage = StageSummarized
	tr.Add(stage, "%s", summary)

	input := ComposeInput{Summary: summary, Asker: askerOf(history, ev)}
	if b.deps.Agent != nil {
		tools, err := b.deps.Agent.Run(ctx, summary)
		if err != nil {
			return b.fail(ctx, log, ev, placeholderTS, tr, stage, err)
		}
		stage = StageIntentsDetected
		tr.Add(stage, "%d tool calls", len(tools))
		input.Tools = tools
	} else {
		intents := b.deps.Classifier.Classify(ctx, summary)
		stage = StageIntentsDetected
		tr.Add(stage, "%d intents", len(intents))

		input.Intents = b.deps.Issues.ExecuteIntents(ctx, intents)
		if len(intents) == 0 && b.deps.Keys != nil {
			input.Issues = b.fallbackIssues(ctx, log, history)
		}
	}
	stage = StageDataFetched
	tr.Add(stage, "%d intent results, %d issue records, %d tool results", len(input.Intents), len(input.Issues), len(input.Tools))

	answer := b.deps.Composer.Compose(ctx, input)
	if err := b.reply(ctx, log, ev, placeholderTS, answer); err != nil {
		return b.fail(ctx, log, ev, "", tr, stage, err)
	}

	log.Info("interaction completed", logging.Since(start))
	return StageResponded
}

// fallbackIssues fetches every issue key mentioned anywhere in the thread.
func (b *Bot) fallbackIssues(ctx context.Context, log *slog.Logger, history []Message) []IssueRecord {
	texts := make([]string, len(history))
	for i, m := range history {
		texts[i] = m.Text
	}
	records, err := b.deps.Issues.FetchBatch(ctx, b.deps.Keys.ExtractFromTexts(texts...))
	if err != nil {
		if !errors.Is(err, ErrNoIssuesFound) {
			log.Warn("fallback issue fetch failed", "error", err)
		}
		return nil
	}
	log.Debug("fallback fetched issues", "count", len(records))
	return records
}

// reply removes the placeholder and posts text concurrently. Only a failed
// post is an error.
func (b *Bot) reply(ctx context.Context, log *slog.Logger, ev slack.Event, placeholderTS, text string) error {
	var postErr error
	var wg conc.WaitGroup
	if placeholderTS != "" {
		wg.Go(func() {
			if err := b.deps.Messenger.DeleteMessage(ctx, ev.Channel, placeholderTS); err != nil {
				log.Warn("failed to delete placeholder", "ts", placeholderTS, "error", err)
			}
		})
	}
	wg.Go(func() {
		if _, err := b.deps.Messenger.PostThreadReply(ctx, ev.Channel, ev.ThreadTS, text); err != nil {
			postErr = fmt.Errorf("post reply: %w", err)
		}
	})
	wg.Wait()
	return postErr
}

func (b *Bot) fail(ctx context.Context, log *slog.Logger, ev slack.Event, placeholderTS string, tr *Transcript, stage Stage, err error) Stage {
	log.Error("interaction failed", "stage", stage, "completed", tr.Stages(), "error", err)
	if tr.Len() > 0 {
		log.Debug("interaction transcript", "transcript", tr.String())
	}

	// The caller's context may already be done; the apology must still go out.
	ctx = context.WithoutCancel(ctx)
	if replyErr := b.reply(ctx, log, ev, placeholderTS, FailureText); replyErr != nil {
		log.Error("failed to post failure message", "error", replyErr)
	}
	return StageFailed
}

// askerOf names the author of the triggering message when it is in history.
func askerOf(history []Message, ev slack.Event) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Timestamp == ev.TS {
			return history[i].Sender
		}
	}
	return ""
}
