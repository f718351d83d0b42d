package council

// EventType names a stream frame
type EventType string

const (
	EventStage1Start  EventType = "stage1_start"
	EventStage1Result EventType = "stage1_result"
	EventStage2Start  EventType = "stage2_start"
	EventStage2Result EventType = "stage2_result"
	EventStage3Start  EventType = "stage3_start"
	EventStage3Result EventType = "stage3_result"
	EventError        EventType = "error"
	EventComplete     EventType = "complete"
)

// Event is one frame of the council stream. Field names are part of the wire
// contract; unused fields are omitted.
type Event struct {
	Type     EventType      `json:"type"`
	Models   []string       `json:"models,omitempty"`
	Model    string         `json:"model,omitempty"`
	Response string         `json:"response,omitempty"`
	Ranking  string         `json:"ranking,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata *EventMetadata `json:"metadata,omitempty"`
}

// EventMetadata is attached to the complete event for provenance display
type EventMetadata struct {
	LabelToModel      map[string]string  `json:"labelToModel,omitempty"`
	AggregateRankings []AggregateRanking `json:"aggregateRankings,omitempty"`
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(Event)

// Emit calls f(ev)
func (f EmitterFunc) Emit(ev Event) { f(ev) }
