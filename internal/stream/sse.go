// Package stream serializes council events onto a Server-Sent Events response.
package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/greenstevester/llm-council/internal/council"
)

// bufferSize lets stage goroutines hand off events without waiting on the network
const bufferSize = 64

// Writer owns the response body. Events from any goroutine go through one
// channel and a single drain goroutine writes them, so frames never interleave.
type Writer struct {
	out     io.Writer
	flusher http.Flusher
	logger  *zap.Logger

	events chan council.Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	// failed is only touched by the drain goroutine
	failed bool
}

// NewWriter starts draining events into w. If w implements http.Flusher every
// frame is flushed as soon as it is written.
func NewWriter(w io.Writer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	flusher, _ := w.(http.Flusher)

	sw := &Writer{
		out:     w,
		flusher: flusher,
		logger:  logger.With(zap.String("component", "sse")),
		events:  make(chan council.Event, bufferSize),
		done:    make(chan struct{}),
	}
	go sw.drain()
	return sw
}

// SetHeaders writes the SSE response headers
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Emit queues an event. Events emitted after Close are dropped.
func (w *Writer) Emit(ev council.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("event emitted after close", zap.String("type", string(ev.Type)))
		return
	}
	w.events <- ev
}

// Close stops accepting events and blocks until every queued event is written.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) drain() {
	defer close(w.done)
	for ev := range w.events {
		if w.failed {
			continue
		}
		if err := w.writeFrame(ev); err != nil {
			// the client is gone; stages keep running, frames are dropped
			w.failed = true
			w.logger.Warn("stream write failed, dropping remaining events", zap.Error(err))
		}
	}
}

func (w *Writer) writeFrame(ev council.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		w.logger.Error("failed to marshal SSE event", zap.String("type", string(ev.Type)), zap.Error(err))
		return nil
	}

	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')

	if _, err := w.out.Write(frame); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
