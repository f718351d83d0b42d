package council

import (
	"context"
	"errors"
	"fmt"

	"github.com/greenstevester/llm-council/internal/llm"
)

// MinParticipants is the smallest council that may be convened
const MinParticipants = 2

// RecordMode tags every persisted council artifact
const RecordMode = "council"

// ErrNoResponders means every Stage 1 participant failed
var ErrNoResponders = errors.New("no responders: all council models failed to respond")

// ValidationError rejects a request before any stream is opened
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Stage identifies one council phase
type Stage int

const (
	StageCollect    Stage = 1
	StageRank       Stage = 2
	StageSynthesize Stage = 3
)

// State is the orchestrator's position in a session
type State string

const (
	StateInit     State = "INIT"
	StateStage1   State = "STAGE1"
	StateStage2   State = "STAGE2"
	StateStage3   State = "STAGE3"
	StateComplete State = "COMPLETE"
	StateError    State = "ERROR"
)

// ModelResponse is one participant's answer in a stage
type ModelResponse struct {
	Model   string `json:"model"`
	Stage   Stage  `json:"stage"`
	Text    string `json:"text"`
	Success bool   `json:"success"`

	// ParsedRanking holds the labels extracted from a Stage 2 answer
	ParsedRanking []string `json:"parsed_ranking,omitempty"`
}

// Request is what a caller asks the council
type Request struct {
	Prompt         string
	SelectedModels []string
	ChairmanModel  string
	History        []llm.Message

	ConversationID string
	ReplyTo        string
	UserID         string
}

// Session is the ephemeral state of one council run
type Session struct {
	ID       string
	Prompt   string
	Models   []string
	History  []llm.Message
	Chairman string

	ConversationID string
	ReplyTo        string
	UserID         string

	state State
}

// State returns the session's current state
func (s *Session) State() State {
	return s.state
}

// Outcome collects everything a finished session produced
type Outcome struct {
	SessionID         string
	State             State
	Stage1            []ModelResponse
	Stage2            []ModelResponse
	Stage3            *ModelResponse
	Labels            Labels
	AggregateRankings []AggregateRanking
}

// Invoker is the model backend adapter
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) llm.Result
}

// Emitter pushes events to the caller
type Emitter interface {
	Emit(Event)
}

// Sink records council artifacts. Failures are logged by the caller and never
// change the course of a session.
type Sink interface {
	RecordMessage(ctx context.Context, rec Record) error
}

// Record is one persisted council artifact
type Record struct {
	Content        string
	Model          string
	Primary        bool
	ConversationID string
	ReplyTo        string
	Mode           string
	UserID         string
	Metadata       RecordMetadata
}

// RecordMetadata travels with every Record
type RecordMetadata struct {
	Stage     Stage  `json:"stage"`
	SessionID string `json:"sessionId"`
	Hidden    bool   `json:"hidden"`

	ParsedRanking     []string           `json:"parsedRanking,omitempty"`
	LabelToModel      map[string]string  `json:"labelToModel,omitempty"`
	AggregateRankings []AggregateRanking `json:"aggregateRankings,omitempty"`
}
