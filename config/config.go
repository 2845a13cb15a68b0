package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/justmike1/intern/llm"
)

const (
	defaultPort         = "3000"
	defaultModel        = "gpt-4o-mini"
	defaultGitHubModel  = "openai/gpt-4o-mini"
	defaultAzureModel   = "gpt-4o-mini"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 450
	defaultHistoryLimit = 1000

	PipelineIntents = "intents"
	PipelineAgent   = "agent"
)

type Config struct {
	SlackBotToken      string
	SlackAppToken      string
	SlackSigningSecret string
	SlackJoinChannels  bool
	SlackHistoryLimit  int
	JiraURL            string
	JiraEmail          string
	JiraAPIToken       string
	JiraClientID       string
	JiraClientSecret   string
	OpenAIAPIKey       string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	AzureEndpoint      string
	AzureAPIKey        string
	GitHubToken        string
	GitHubOrg          string
	Port               string
	APIAllowedCIDRs    string
	Pipeline           string
	DisableAI          bool
	KeyFallback        bool
	PromptsFile        string
	LogLevel           string
	LogFormat          string
}

// UseAzure returns true when Azure OpenAI credentials are configured.
func (c *Config) UseAzure() bool {
	return c.AzureEndpoint != "" && c.AzureAPIKey != ""
}

// LLMBackend picks the completion backend as one of the llm.Backend values.
// Azure wins over OpenAI, and the GitHub Models endpoint is used only when
// nothing else is configured.
func (c *Config) LLMBackend() string {
	switch {
	case c.UseAzure():
		return llm.BackendAzure
	case c.OpenAIAPIKey != "":
		return llm.BackendOpenAI
	case c.GitHubToken != "":
		return llm.BackendGitHub
	default:
		return ""
	}
}

// JiraConfigured returns true when Jira credentials are present.
// Supports both Basic Auth (email + API token) and OAuth 2.0 (client ID + secret).
func (c *Config) JiraConfigured() bool {
	if c.JiraURL == "" {
		return false
	}
	return (c.JiraEmail != "" && c.JiraAPIToken != "") || c.JiraUseOAuth()
}

// JiraUseOAuth returns true when OAuth 2.0 client credentials are configured.
func (c *Config) JiraUseOAuth() bool {
	return c.JiraClientID != "" && c.JiraClientSecret != ""
}

// SocketMode reports whether events arrive over a Socket Mode connection
// rather than the HTTP Events API endpoint.
func (c *Config) SocketMode() bool {
	return c.SlackAppToken != ""
}

// Load reads configuration from the environment, an optional .env file in the
// working directory and an optional config file (YAML, TOML or JSON, picked
// by extension). Environment variables win over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", defaultPort)
	v.SetDefault("llm_temperature", defaultTemperature)
	v.SetDefault("llm_max_tokens", defaultMaxTokens)
	v.SetDefault("slack_history_limit", defaultHistoryLimit)
	v.SetDefault("slack_join_channels", true)
	v.SetDefault("pipeline", PipelineIntents)
	v.SetDefault("key_fallback", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		SlackBotToken:      v.GetString("slack_bot_token"),
		SlackAppToken:      v.GetString("slack_app_token"),
		SlackSigningSecret: v.GetString("slack_signing_secret"),
		SlackJoinChannels:  v.GetBool("slack_join_channels"),
		SlackHistoryLimit:  v.GetInt("slack_history_limit"),
		JiraURL:            firstNonEmpty(v.GetString("jira_url"), hostToURL(v.GetString("jira_host"))),
		JiraEmail:          firstNonEmpty(v.GetString("jira_email"), v.GetString("jira_username")),
		JiraAPIToken:       v.GetString("jira_api_token"),
		JiraClientID:       v.GetString("jira_client_id"),
		JiraClientSecret:   v.GetString("jira_client_secret"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		LLMModel:           firstNonEmpty(v.GetString("llm_model"), v.GetString("openai_model")),
		LLMTemperature:     v.GetFloat64("llm_temperature"),
		LLMMaxTokens:       v.GetInt("llm_max_tokens"),
		AzureEndpoint:      v.GetString("azure_open_ai_endpoint"),
		AzureAPIKey:        v.GetString("azure_api_key"),
		GitHubToken:        v.GetString("github_token"),
		GitHubOrg:          v.GetString("github_org"),
		Port:               v.GetString("port"),
		APIAllowedCIDRs:    v.GetString("api_allowed_cidrs"),
		Pipeline:           strings.ToLower(v.GetString("pipeline")),
		DisableAI:          v.GetBool("disable_ai"),
		KeyFallback:        v.GetBool("key_fallback"),
		PromptsFile:        v.GetString("prompts_file"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
	}
	cfg.JiraURL = strings.TrimRight(cfg.JiraURL, "/")

	if cfg.SlackHistoryLimit < defaultHistoryLimit {
		cfg.SlackHistoryLimit = defaultHistoryLimit
	}
	if cfg.LLMModel == "" {
		switch cfg.LLMBackend() {
		case llm.BackendAzure:
			cfg.LLMModel = defaultAzureModel
		case llm.BackendGitHub:
			cfg.LLMModel = defaultGitHubModel
		default:
			cfg.LLMModel = defaultModel
		}
	}

	return cfg, nil
}

// Validate checks everything the serve command needs.
func (c *Config) Validate() error {
	var errs []error

	if c.SlackBotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.SlackAppToken == "" && c.SlackSigningSecret == "" {
		errs = append(errs, errors.New("SLACK_APP_TOKEN (socket mode) or SLACK_SIGNING_SECRET (events API) is required"))
	}
	if err := c.ValidateJira(); err != nil {
		errs = append(errs, err)
	}
	if c.LLMBackend() == "" && !c.DisableAI {
		errs = append(errs, errors.New("OPENAI_API_KEY is required (or set AZURE_OPEN_AI_ENDPOINT and AZURE_API_KEY, or GITHUB_TOKEN)"))
	}
	if c.Pipeline != PipelineIntents && c.Pipeline != PipelineAgent {
		errs = append(errs, fmt.Errorf("PIPELINE must be %q or %q, got %q", PipelineIntents, PipelineAgent, c.Pipeline))
	}

	return errors.Join(errs...)
}

// ValidateJira checks the Jira settings only.
func (c *Config) ValidateJira() error {
	if c.JiraURL == "" {
		return errors.New("JIRA_URL (or JIRA_HOST) is required")
	}
	if !c.JiraConfigured() {
		return errors.New("JIRA_EMAIL and JIRA_API_TOKEN (or JIRA_CLIENT_ID and JIRA_CLIENT_SECRET) are required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// hostToURL accepts a bare host such as "acme.atlassian.net".
func hostToURL(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}
