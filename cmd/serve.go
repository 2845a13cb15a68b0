package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/justmike1/intern/assistant"
	"github.com/justmike1/intern/config"
	"github.com/justmike1/intern/github"
	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/logging"
	"github.com/justmike1/intern/prompts"
	"github.com/justmike1/intern/slack"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for Slack events and answer them",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logger.Info("configuration loaded", credentialAttrs(cfg)...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return err
	}

	jiraClient, err := newJiraClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Project keys must be known before the first event is handled.
	registry, err := jira.LoadRegistry(ctx, jiraClient)
	if err != nil {
		return err
	}
	projectKeys, _ := registry.ProjectKeys()
	logger.Info("jira project keys loaded", "auth", jiraClient.AuthMode(), "count", len(projectKeys))

	slackClient := slack.NewClient(cfg.SlackBotToken)
	botUserID, err := slackClient.GetBotUserID(ctx)
	if err != nil {
		return fmt.Errorf("failed to identify bot user: %w", err)
	}
	if cfg.SlackJoinChannels {
		joined, err := slackClient.JoinPublicChannels(ctx)
		if err != nil {
			logger.Warn("some public channels could not be joined", "error", err)
		}
		logger.Info("joined public channels", "count", joined)
	}

	bot, err := newBot(cfg, store, jiraClient, registry, slackClient, botUserID, logger)
	if err != nil {
		return err
	}
	dispatcher := slack.NewDispatcher(botUserID, bot.HandleEvent, logger)

	var events http.Handler
	if cfg.SlackSigningSecret != "" {
		events = slack.NewEventsHandler(ctx, cfg.SlackSigningSecret, dispatcher, logger)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(registry, store, events, cfg.APIAllowedCIDRs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", "port", cfg.Port, "events_api", events != nil)
		errCh <- srv.ListenAndServe()
	}()
	if cfg.SocketMode() {
		listener := slack.NewSocketListener(cfg.SlackAppToken, cfg.SlackBotToken, dispatcher, logger)
		go func() {
			errCh <- listener.Run(ctx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	return runErr
}

func newJiraClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*jira.Client, error) {
	if cfg.JiraUseOAuth() {
		return jira.NewOAuthClient(ctx, cfg.JiraURL, cfg.JiraClientID, cfg.JiraClientSecret, logger)
	}
	return jira.NewClient(cfg.JiraURL, cfg.JiraEmail, cfg.JiraAPIToken)
}

// credentialAttrs describes which secrets are set without logging them.
func credentialAttrs(cfg *config.Config) []any {
	return []any{
		"slack_bot_token", logging.Mask(cfg.SlackBotToken),
		"slack_app_token", logging.Mask(cfg.SlackAppToken),
		"slack_signing_secret", logging.Mask(cfg.SlackSigningSecret),
		"jira_url", cfg.JiraURL,
		"jira_api_token", logging.Mask(cfg.JiraAPIToken),
		"jira_client_secret", logging.Mask(cfg.JiraClientSecret),
		"llm_api_key", logging.Mask(llmConfig(cfg).APIKey),
		"github_token", logging.Mask(cfg.GitHubToken),
	}
}

func llmConfig(cfg *config.Config) llm.Config {
	c := llm.Config{
		Backend:     cfg.LLMBackend(),
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}
	switch c.Backend {
	case llm.BackendAzure:
		c.APIKey = cfg.AzureAPIKey
		c.Endpoint = cfg.AzureEndpoint
	case llm.BackendGitHub:
		c.APIKey = cfg.GitHubToken
	default:
		c.APIKey = cfg.OpenAIAPIKey
	}
	return c
}

func newBot(cfg *config.Config, store *prompts.Store, jiraClient *jira.Client, registry *jira.Registry, slackClient *slack.Client, botUserID string, logger *slog.Logger) (*assistant.Bot, error) {
	model, err := llm.New(llmConfig(cfg), logger.With("component", "llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	logger.Info("llm backend selected", "backend", cfg.LLMBackend(), "model", model.Model(), "pipeline", cfg.Pipeline)

	var prs assistant.PullRequestFinder
	if cfg.GitHubToken != "" {
		prs = github.NewClient(cfg.GitHubToken, cfg.GitHubOrg)
	}

	deps := assistant.BotDeps{
		Messenger:  slackClient,
		History:    assistant.NewHistoryFetcher(slackClient, cfg.SlackHistoryLimit, botUserID, logger),
		Summarizer: assistant.NewSummarizer(model, store, logger),
		Classifier: assistant.NewClassifier(model, store, logger),
		Issues:     assistant.NewIssueService(jiraClient, prs, logger),
		Composer:   assistant.NewComposer(model, store, jiraClient.SiteURL(), logger),
		DisableAI:  cfg.DisableAI,
	}
	if cfg.Pipeline == config.PipelineAgent {
		deps.Agent = assistant.NewToolAgent(model, store, registry, jiraClient, logger)
	}
	if cfg.KeyFallback {
		keys, err := jira.NewKeyExtractor(registry)
		if err != nil {
			return nil, err
		}
		deps.Keys = keys
	}
	return assistant.NewBot(deps, logger), nil
}
