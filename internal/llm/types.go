package llm

import "encoding/json"

// Roles used in chat messages
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one model invocation
type Request struct {
	Model  string
	Prompt string

	// History holds prior turns, oldest first. It is sent before Prompt.
	History []Message

	// MaxLength is a character budget for the answer. Zero leaves the
	// provider's default in place.
	MaxLength int

	// SystemPrompt, when non-empty, is sent as the first message
	SystemPrompt string
}

// Result is the outcome of one invocation. Failures are carried in Err so
// callers can filter them as data.
type Result struct {
	Model string
	Text  string
	Err   error
}

// OK reports whether the call produced usable text
func (r Result) OK() bool {
	return r.Err == nil && r.Text != ""
}

// chatRequest is the OpenRouter request payload
type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// chatResponse is the subset of the OpenRouter response we read.
// Content is left raw because providers return strings, segment arrays or objects.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    json.RawMessage `json:"code,omitempty"`
	Message string          `json:"message"`
}
