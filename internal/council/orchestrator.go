package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greenstevester/llm-council/internal/llm"
)

// Settings tunes an Orchestrator
type Settings struct {
	// ResponseMaxLength is the character budget for Stage 1 and Stage 2 calls
	ResponseMaxLength int

	// SynthesisMaxLength is the character budget for the chairman call
	SynthesisMaxLength int

	// FallbackChairman is used when a request yields no chairman at all
	FallbackChairman string

	// MaxConcurrency bounds in-flight calls per stage; zero means unbounded
	MaxConcurrency int

	// PersistTimeout bounds each persistence write; zero means no bound
	PersistTimeout time.Duration
}

// Orchestrator runs council sessions against an injected model backend and
// persistence sink. It holds no per-session state and is safe for concurrent use.
type Orchestrator struct {
	backend  Invoker
	sink     Sink
	settings Settings
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. sink may be nil to disable persistence.
func NewOrchestrator(backend Invoker, sink Sink, settings Settings, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		backend:  backend,
		sink:     sink,
		settings: settings,
		logger:   logger.With(zap.String("component", "council")),
	}
}

// NewSession validates a request and creates the session for it. It is the
// INIT state: a returned *ValidationError means no stream should be opened.
func (o *Orchestrator) NewSession(req Request) (*Session, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}

	models := make([]string, 0, len(req.SelectedModels))
	seen := make(map[string]bool, len(req.SelectedModels))
	for i, m := range req.SelectedModels {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("selectedModels[%d]", i), Reason: "must not be empty"}
		}
		if seen[m] {
			return nil, &ValidationError{Field: "selectedModels", Reason: fmt.Sprintf("duplicate model %q", m)}
		}
		seen[m] = true
		models = append(models, m)
	}
	if len(models) < MinParticipants {
		return nil, &ValidationError{
			Field:  "selectedModels",
			Reason: fmt.Sprintf("at least %d models are required, got %d", MinParticipants, len(models)),
		}
	}

	history := make([]llm.Message, len(req.History))
	copy(history, req.History)

	return &Session{
		ID:             uuid.NewString(),
		Prompt:         prompt,
		Models:         models,
		History:        history,
		Chairman:       o.chairmanFor(req.ChairmanModel, models),
		ConversationID: req.ConversationID,
		ReplyTo:        req.ReplyTo,
		UserID:         req.UserID,
		state:          StateInit,
	}, nil
}

// chairmanFor picks the explicit chairman, else the first selected model,
// else the configured fallback. Stage 2 rankings play no part in the choice.
func (o *Orchestrator) chairmanFor(requested string, models []string) string {
	if c := strings.TrimSpace(requested); c != "" {
		return c
	}
	if len(models) > 0 {
		return models[0]
	}
	return o.settings.FallbackChairman
}

// Run drives a validated session through the three stages, emitting events as
// results arrive. It returns ErrNoResponders when Stage 1 produced nothing; in
// that case one error event has been emitted and no complete event follows.
// A failed chairman call is reported as an error event and the session still
// completes. emit must be safe for concurrent use.
func (o *Orchestrator) Run(ctx context.Context, s *Session, emit Emitter) (*Outcome, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if s.state != StateInit {
		return nil, fmt.Errorf("session %s already ran (state %s)", s.ID, s.state)
	}

	r := &run{
		o:       o,
		session: s,
		emit:    emit,
		logger: o.logger.With(
			zap.String("session_id", s.ID),
			zap.String("conversation_id", s.ConversationID)),
	}
	// persistence never holds up the stream; it is only joined once the last event is out
	defer r.writes.Wait()

	out := &Outcome{SessionID: s.ID}
	start := time.Now()

	s.state = StateStage1
	out.Stage1 = r.collect(ctx)
	if len(out.Stage1) == 0 {
		s.state = StateError
		out.State = s.state
		r.logger.Error("stage 1 produced no responses", zap.Strings("models", s.Models))
		emit.Emit(Event{Type: EventError, Message: ErrNoResponders.Error()})
		return out, ErrNoResponders
	}

	s.state = StateStage2
	out.Labels = AssignLabels(out.Stage1)
	out.Stage2 = r.rank(ctx, out.Stage1, out.Labels)
	out.AggregateRankings = AggregateRankings(out.Stage2, out.Labels)

	s.state = StateStage3
	out.Stage3 = r.synthesize(ctx, out)

	s.state = StateComplete
	out.State = s.state
	emit.Emit(Event{
		Type: EventComplete,
		Metadata: &EventMetadata{
			LabelToModel:      out.Labels.LabelToModel(),
			AggregateRankings: out.AggregateRankings,
		},
	})

	r.logger.Info("council session complete",
		zap.Int("stage1_responses", len(out.Stage1)),
		zap.Int("stage2_rankings", len(out.Stage2)),
		zap.Bool("synthesized", out.Stage3 != nil),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// run carries the state of one Run call
type run struct {
	o       *Orchestrator
	session *Session
	emit    Emitter
	logger  *zap.Logger
	writes  sync.WaitGroup
}

// collect is Stage 1: every participant answers the prompt independently
func (r *run) collect(ctx context.Context) []ModelResponse {
	s := r.session
	r.emit.Emit(Event{Type: EventStage1Start, Models: append([]string(nil), s.Models...)})

	reqs := make([]llm.Request, len(s.Models))
	for i, model := range s.Models {
		reqs[i] = llm.Request{
			Model:     model,
			Prompt:    s.Prompt,
			History:   s.History,
			MaxLength: r.o.settings.ResponseMaxLength,
		}
	}

	return r.fanOut(ctx, StageCollect, reqs, func(resp ModelResponse) {
		r.emit.Emit(Event{Type: EventStage1Result, Model: resp.Model, Response: resp.Text})
		r.record(resp, RecordMetadata{Stage: StageCollect, SessionID: s.ID, Hidden: true}, false)
	})
}

// rank is Stage 2: every Stage 1 survivor reviews all anonymized answers,
// its own included, using one shared prompt
func (r *run) rank(ctx context.Context, stage1 []ModelResponse, labels Labels) []ModelResponse {
	s := r.session
	r.emit.Emit(Event{Type: EventStage2Start})

	prompt := BuildRankingPrompt(s.Prompt, stage1, labels)
	reqs := make([]llm.Request, len(stage1))
	for i, resp := range stage1 {
		reqs[i] = llm.Request{
			Model:     resp.Model,
			Prompt:    prompt,
			MaxLength: r.o.settings.ResponseMaxLength,
		}
	}

	rankings := r.fanOut(ctx, StageRank, reqs, func(resp ModelResponse) {
		r.emit.Emit(Event{Type: EventStage2Result, Model: resp.Model, Ranking: resp.Text})
		r.record(resp, RecordMetadata{
			Stage:         StageRank,
			SessionID:     s.ID,
			Hidden:        true,
			ParsedRanking: resp.ParsedRanking,
		}, false)
	})

	if len(rankings) == 0 {
		r.logger.Warn("stage 2 produced no rankings, continuing to synthesis")
	}
	return rankings
}

// synthesize is Stage 3: the chairman writes the final answer
func (r *run) synthesize(ctx context.Context, out *Outcome) *ModelResponse {
	s := r.session
	r.emit.Emit(Event{Type: EventStage3Start})

	res := r.invoke(ctx, llm.Request{
		Model:     s.Chairman,
		Prompt:    BuildSynthesisPrompt(s.Prompt, out.Stage1, out.Stage2),
		MaxLength: r.o.settings.SynthesisMaxLength,
	})
	resp := toModelResponse(StageSynthesize, s.Chairman, res)
	if !resp.Success {
		r.logger.Error("chairman failed to synthesize", zap.String("chairman", s.Chairman), zap.Error(res.Err))
		r.emit.Emit(Event{
			Type:    EventError,
			Message: fmt.Sprintf("chairman model %s failed to synthesize a final answer", s.Chairman),
		})
		return nil
	}

	r.emit.Emit(Event{Type: EventStage3Result, Model: resp.Model, Response: resp.Text})
	r.record(resp, RecordMetadata{
		Stage:             StageSynthesize,
		SessionID:         s.ID,
		Hidden:            false,
		LabelToModel:      out.Labels.LabelToModel(),
		AggregateRankings: out.AggregateRankings,
	}, true)
	return &resp
}

// fanOut invokes every request concurrently and waits for all of them.
// onSuccess runs as each successful call completes, in arrival order.
// The returned success set keeps the order of reqs.
func (r *run) fanOut(ctx context.Context, stage Stage, reqs []llm.Request, onSuccess func(ModelResponse)) []ModelResponse {
	slots := make([]ModelResponse, len(reqs))

	var g errgroup.Group
	if n := r.o.settings.MaxConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, req := range reqs {
		g.Go(func() error {
			resp := toModelResponse(stage, req.Model, r.invoke(ctx, req))
			// each task owns its slot; Wait publishes them
			slots[i] = resp
			if resp.Success {
				onSuccess(resp)
			}
			return nil
		})
	}
	_ = g.Wait()

	successes := make([]ModelResponse, 0, len(slots))
	for _, resp := range slots {
		if resp.Success {
			successes = append(successes, resp)
		}
	}
	return successes
}

// invoke calls the backend, turning a panic into an ordinary failure
func (r *run) invoke(ctx context.Context, req llm.Request) (res llm.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = llm.Result{Model: req.Model, Err: fmt.Errorf("backend panic: %v", p)}
		}
	}()

	res = r.o.backend.Invoke(ctx, req)
	if res.Err != nil {
		r.logger.Warn("model call failed", zap.String("model", req.Model), zap.Error(res.Err))
	}
	return res
}

// record persists one artifact on its own goroutine. Failures are logged only.
func (r *run) record(resp ModelResponse, meta RecordMetadata, primary bool) {
	if r.o.sink == nil {
		return
	}
	s := r.session
	rec := Record{
		Content:        resp.Text,
		Model:          resp.Model,
		Primary:        primary,
		ConversationID: s.ConversationID,
		ReplyTo:        s.ReplyTo,
		Mode:           RecordMode,
		UserID:         s.UserID,
		Metadata:       meta,
	}

	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("persistence panicked", zap.Any("panic", p), zap.String("model", rec.Model))
			}
		}()

		ctx := context.Background()
		if t := r.o.settings.PersistTimeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}

		if err := r.o.sink.RecordMessage(ctx, rec); err != nil {
			r.logger.Warn("failed to persist council message",
				zap.Int("stage", int(meta.Stage)),
				zap.String("model", rec.Model),
				zap.Error(err))
		}
	}()
}

func toModelResponse(stage Stage, model string, res llm.Result) ModelResponse {
	text := strings.TrimSpace(res.Text)
	resp := ModelResponse{
		Model:   model,
		Stage:   stage,
		Text:    text,
		Success: res.Err == nil && text != "",
	}
	if stage == StageRank && resp.Success {
		resp.ParsedRanking = ParseRanking(text)
	}
	return resp
}
