package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// NormalizeContent flattens a provider content payload into one trimmed string.
// Accepted shapes: a JSON string, an array of segments (strings or objects
// carrying text), or an object carrying text. Unknown shapes yield "".
func NormalizeContent(raw json.RawMessage) string {
	return strings.TrimSpace(flatten(raw))
}

func flatten(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s

	case '[':
		var segments []json.RawMessage
		if err := json.Unmarshal(raw, &segments); err != nil {
			return ""
		}
		parts := make([]string, 0, len(segments))
		for _, seg := range segments {
			if text := strings.TrimSpace(flatten(seg)); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		for _, key := range []string{"text", "content", "value"} {
			if v, ok := obj[key]; ok {
				if text := flatten(v); strings.TrimSpace(text) != "" {
					return text
				}
			}
		}
		return ""
	}

	// numbers, booleans and null carry no text
	return ""
}

// MaxTokens converts a character budget into a token budget at roughly four
// characters per token, rounded up and never below one. A non-positive budget
// returns 0, meaning "use the provider default".
func MaxTokens(maxLength int) int {
	if maxLength <= 0 {
		return 0
	}
	tokens := (maxLength + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// BuildMessages assembles the outgoing message list: optional system message,
// then history oldest first, then the current prompt.
func BuildMessages(req Request) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})
	return messages
}
