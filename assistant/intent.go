package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/justmike1/intern/logging"
	"github.com/justmike1/intern/llm"
	"github.com/justmike1/intern/prompts"
)

// Intent names.
const (
	IntentGetStatus    = "getStatus"
	IntentGetDetails   = "getDetails"
	IntentGetChangelog = "getChangelog"
	IntentUnknown      = "unknown"
)

// MinConfidence is the exclusive lower bound for keeping a detected intent.
const MinConfidence = 0.7

// ParamSpec describes one intent parameter in the catalog shown to the model.
type ParamSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// IntentSpec is one catalog entry.
type IntentSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamSpec `json:"parameters"`
	Examples    []string    `json:"examples"`
}

var ticketParam = ParamSpec{
	Name:        "ticketId",
	Description: "The ID of the Jira ticket (e.g., 'CPG-12').",
	Required:    true,
}

// Catalog lists every intent the classifier may report. "unknown" is
// offered to the model but never survives filtering.
var Catalog = []IntentSpec{
	{
		Name:        IntentGetStatus,
		Description: "Retrieve the current status of a specific Jira ticket.",
		Parameters:  []ParamSpec{ticketParam},
		Examples: []string{
			"What's the status of CPG-12?",
			"Is ticket CPG-12 resolved?",
			"Where did we get with CPG-12?",
		},
	},
	{
		Name:        IntentGetDetails,
		Description: "Retrieve detailed information about a specific Jira ticket.",
		Parameters:  []ParamSpec{ticketParam},
		Examples: []string{
			"Tell me more about CPG-12.",
			"What's the priority of CPG-12?",
			"Can you give me the details of CPG-12?",
		},
	},
	{
		Name:        IntentGetChangelog,
		Description: "Retrieve the recent change history of a specific Jira ticket.",
		Parameters:  []ParamSpec{ticketParam},
		Examples: []string{
			"Who moved CPG-12 to done?",
			"What changed on CPG-12 this week?",
			"When was CPG-12 reassigned?",
		},
	},
	{
		Name:        IntentUnknown,
		Description: "Use when the query does not match any defined intent.",
		Parameters:  []ParamSpec{},
		Examples: []string{
			"What do you think of the weather?",
			"Can you recommend a good book?",
		},
	},
}

func inCatalog(name string) bool {
	for _, entry := range Catalog {
		if entry.Name == name {
			return true
		}
	}
	return false
}

// Parameter is a named value extracted by the classifier.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Intent is a classified request.
type Intent struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	Confidence float64     `json:"confidence"`
}

// FirstParam returns the first parameter value, trimmed.
func (i Intent) FirstParam() string {
	if len(i.Parameters) == 0 {
		return ""
	}
	return strings.TrimSpace(i.Parameters[0].Value)
}

// Classifier maps a summary to catalog intents.
type Classifier struct {
	model   ChatModel
	prompts PromptProvider
	catalog string
	logger  *slog.Logger
}

func NewClassifier(model ChatModel, p PromptProvider, logger *slog.Logger) *Classifier {
	catalog, _ := json.MarshalIndent(Catalog, "", "  ")
	return &Classifier{
		model:   model,
		prompts: p,
		catalog: string(catalog),
		logger:  logging.OrDiscard(logger).With("component", "classifier"),
	}
}

// Classify never fails. Model errors and malformed output yield no intents.
func (c *Classifier) Classify(ctx context.Context, summary string) []Intent {
	system := c.prompts.Render(prompts.Classify, map[string]string{"intents": c.catalog})
	resp, err := c.model.Chat(ctx, llm.Request{
		System:   system,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Summary: " + summary}},
		JSON:     true,
	})
	if err != nil {
		c.logger.Warn("intent classification failed", "error", err)
		return []Intent{}
	}

	entries, ok := parseIntents(resp.Content)
	if !ok {
		c.logger.Warn("malformed intent output", "content", truncate(resp.Content, 200))
		return []Intent{}
	}

	kept := make([]Intent, 0, len(entries))
	for i, raw := range entries {
		var in Intent
		if err := json.Unmarshal(raw, &in); err != nil {
			c.logger.Warn("skipping malformed intent", "index", i, "entry", truncate(string(raw), 200), "error", err)
			continue
		}
		if in.Name == IntentUnknown || in.Confidence <= MinConfidence || !inCatalog(in.Name) {
			continue
		}
		kept = append(kept, in)
	}
	c.logger.Debug("intents classified", "detected", len(entries), "kept", len(kept))
	return kept
}

// parseIntents unwraps the {"intents": [...]} envelope. Entries are returned
// undecoded so one bad entry does not discard the rest.
func parseIntents(content string) ([]json.RawMessage, bool) {
	var envelope struct {
		Intents json.RawMessage `json:"intents"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &envelope); err != nil {
		return nil, false
	}
	if len(envelope.Intents) == 0 {
		return nil, false
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(envelope.Intents, &entries); err != nil {
		return nil, false
	}
	if entries == nil {
		// "intents": null
		return nil, false
	}
	return entries, true
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
