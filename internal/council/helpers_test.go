package council

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/greenstevester/llm-council/internal/llm"
)

// behavior scripts one fake model: which stages it fails
type behavior struct {
	failCollect    bool
	failRank       bool
	failSynthesize bool
	emptyCollect   bool
}

// fakeBackend answers according to per-model behaviors and records every call
type fakeBackend struct {
	mu        sync.Mutex
	calls     []llm.Request
	behaviors map[string]behavior

	// hook, when set, runs before the scripted answer
	hook func(req llm.Request)
}

func newFakeBackend(behaviors map[string]behavior) *fakeBackend {
	if behaviors == nil {
		behaviors = map[string]behavior{}
	}
	return &fakeBackend{behaviors: behaviors}
}

func stageOf(req llm.Request) Stage {
	switch {
	case strings.Contains(req.Prompt, "You are the Chairman of an LLM Council"):
		return StageSynthesize
	case strings.Contains(req.Prompt, "FINAL RANKING:"):
		return StageRank
	default:
		return StageCollect
	}
}

func (f *fakeBackend) Invoke(ctx context.Context, req llm.Request) llm.Result {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	b := f.behaviors[req.Model]
	f.mu.Unlock()

	if f.hook != nil {
		f.hook(req)
	}

	fail := errors.New("provider unavailable")
	switch stageOf(req) {
	case StageCollect:
		if b.failCollect {
			return llm.Result{Model: req.Model, Err: fail}
		}
		if b.emptyCollect {
			return llm.Result{Model: req.Model, Text: "   "}
		}
		return llm.Result{Model: req.Model, Text: "answer from " + req.Model}
	case StageRank:
		if b.failRank {
			return llm.Result{Model: req.Model, Err: fail}
		}
		return llm.Result{Model: req.Model, Text: "critique by " + req.Model + "\n\nFINAL RANKING:\n1. Response B\n2. Response A"}
	default:
		if b.failSynthesize {
			return llm.Result{Model: req.Model, Err: fail}
		}
		return llm.Result{Model: req.Model, Text: "final answer by " + req.Model}
	}
}

// callsFor returns the recorded calls of one stage
func (f *fakeBackend) callsFor(stage Stage) []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llm.Request
	for _, c := range f.calls {
		if stageOf(c) == stage {
			out = append(out, c)
		}
	}
	return out
}

func modelsOf(reqs []llm.Request) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Model
	}
	return out
}

// recorder collects emitted events
type recorder struct {
	mu     sync.Mutex
	events []Event
	onEmit func(Event)
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if r.onEmit != nil {
		r.onEmit(ev)
	}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) types() []EventType {
	events := r.snapshot()
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.snapshot() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeSink records persisted artifacts, optionally failing every write
type fakeSink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *fakeSink) RecordMessage(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) byStage(stage Stage) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.Metadata.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

var testSettings = Settings{
	ResponseMaxLength:  8000,
	SynthesisMaxLength: 16000,
	FallbackChairman:   "fallback/chairman",
}
