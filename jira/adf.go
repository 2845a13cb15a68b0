package jira

import (
	"encoding/json"
	"strings"
)

// PlainText extracts plain text from an Atlassian Document Format value.
// API v2 payloads carry plain strings instead; those are returned as-is.
func PlainText(data json.RawMessage) string {
	if s, ok := asString(data); ok {
		return strings.TrimSpace(s)
	}
	content := topLevelContent(data)
	var sb strings.Builder
	for _, node := range content {
		extractText(node, &sb)
	}
	return strings.TrimSpace(sb.String())
}

// FirstParagraph returns the text of the first top-level block that has any
// text in it.
func FirstParagraph(data json.RawMessage) string {
	if s, ok := asString(data); ok {
		s = strings.TrimSpace(s)
		if i := strings.Index(s, "\n\n"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}
	for _, node := range topLevelContent(data) {
		var sb strings.Builder
		extractText(node, &sb)
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text
		}
	}
	return ""
}

func asString(data json.RawMessage) (string, bool) {
	if len(data) == 0 || data[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

func topLevelContent(data json.RawMessage) []json.RawMessage {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var doc struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc.Content
}

// extractText recursively extracts text from ADF nodes.
func extractText(data json.RawMessage, sb *strings.Builder) {
	var node struct {
		Type    string            `json:"type"`
		Text    string            `json:"text"`
		Attrs   map[string]any    `json:"attrs"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &node); err != nil {
		return
	}
	switch node.Type {
	case "hardBreak":
		sb.WriteString("\n")
	case "mention", "emoji":
		if t, ok := node.Attrs["text"].(string); ok {
			sb.WriteString(t)
		}
	case "inlineCard":
		if u, ok := node.Attrs["url"].(string); ok {
			sb.WriteString(u)
		}
	}
	if node.Text != "" {
		sb.WriteString(node.Text)
	}
	for _, child := range node.Content {
		extractText(child, sb)
	}
	switch node.Type {
	case "paragraph", "heading", "bulletList", "orderedList", "listItem", "codeBlock", "blockquote":
		sb.WriteString("\n")
	}
}
