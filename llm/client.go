package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/justmike1/intern/logging"
)

// Supported backends.
const (
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendGitHub = "github"
)

const githubModelsBaseURL = "https://models.github.ai/inference"

// ErrEmptyResponse is returned when the model answers with no choices, or
// with neither content nor tool calls.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Error wraps a failed chat completion. StatusCode is zero for transport
// failures.
type Error struct {
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat completion (%s, HTTP %d): %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat completion (%s): %v", e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Config selects the backend and the sampling defaults applied to every call.
type Config struct {
	Backend     string
	APIKey      string
	Endpoint    string // Azure resource endpoint
	BaseURL     string // overrides the backend default
	Model       string
	Temperature float64
	MaxTokens   int
	MaxAttempts int
	BaseDelay   time.Duration
	HTTPClient  *http.Client
}

// RoleUser is the role of every message the assistant sends.
const RoleUser = openai.ChatMessageRoleUser

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a function invocation requested by the model. Arguments is a
// raw JSON object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Request is a single chat completion. System is prepended as the system
// message when set. JSON forces a JSON-object response.
type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
	JSON     bool
}

// Response is the first choice of a chat completion.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	TotalTokens  int
}

// Client wraps go-openai with retries and the configured sampling defaults.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// New builds a Client for cfg.Backend.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	var oc openai.ClientConfig
	switch cfg.Backend {
	case BackendAzure:
		if cfg.Endpoint == "" {
			return nil, errors.New("azure backend requires an endpoint")
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
	case BackendGitHub:
		oc = openai.DefaultConfig(cfg.APIKey)
		oc.BaseURL = githubModelsBaseURL
	case BackendOpenAI, "":
		oc = openai.DefaultConfig(cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}

	c := &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      logging.OrDiscard(logger),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 400 * time.Millisecond
	}
	return c, nil
}

// Model returns the model or deployment name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Chat sends req and returns the first choice. Transient failures (429, 5xx,
// transport errors) are retried with backoff.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	creq := c.buildRequest(req)

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, creq)
		return err
	})
	if err != nil {
		return nil, &Error{Model: c.model, StatusCode: statusOf(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TotalTokens:  resp.Usage.TotalTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	if strings.TrimSpace(out.Content) == "" && len(out.ToolCalls) == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("llm chat completed",
		"model", c.model,
		"finish_reason", out.FinishReason,
		"tool_calls", len(out.ToolCalls),
		"total_tokens", out.TotalTokens)
	return out, nil
}

func (c *Client) buildRequest(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return creq
}
