package event

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sweetpotato0/physio-agent/errors"
	"github.com/sweetpotato0/physio-agent/pkg/logging"
)

// Emitter receives progress events from a running conversation. Emit is
// fire-and-forget: implementations must not block the run and must never
// panic on events emitted after the run finished.
type Emitter interface {
	Emit(ev Event)
}

// Discard swallows every event, for callers that only want the final result.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// StreamEmitter writes newline-delimited JSON events to an io.Writer,
// flushing after each event when the writer supports it. Safe for use from
// multiple goroutines.
type StreamEmitter struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
	logger *slog.Logger
}

// NewStreamEmitter wraps w. If w is an http.ResponseWriter the emitter
// flushes after every event so clients observe deltas as they happen.
func NewStreamEmitter(w io.Writer) *StreamEmitter {
	return &StreamEmitter{
		w:      w,
		logger: logging.WithComponent("event"),
	}
}

// Emit writes one event followed by a newline. Events emitted after Close
// are dropped.
func (s *StreamEmitter) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event", "type", ev.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		s.logger.Warn("write event", "type", ev.Type, "error", err)
		return
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Close marks the stream finished. Subsequent Emit calls are dropped;
// closing twice returns ErrEmitterClosed.
func (s *StreamEmitter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrEmitterClosed
	}
	s.closed = true
	return nil
}

// ChannelEmitter fans events out over a buffered channel. When the buffer is
// full events are dropped rather than blocking the run.
type ChannelEmitter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	logger *slog.Logger
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEmitter{
		ch:     make(chan Event, buffer),
		logger: logging.WithComponent("event"),
	}
}

// Emit delivers the event if buffer space remains, dropping it otherwise.
// Events emitted after Close are dropped.
func (c *ChannelEmitter) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- ev:
	default:
		c.logger.Warn("event buffer full, dropping", "type", ev.Type)
	}
}

// Events returns the receive side of the channel.
func (c *ChannelEmitter) Events() <-chan Event {
	return c.ch
}

// Close closes the channel. Closing twice is a no-op.
func (c *ChannelEmitter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Collector records every event it receives; useful in tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event to the collected slice.
func (c *Collector) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a snapshot of everything collected so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// ByType filters the collected events by type.
func (c *Collector) ByType(t Type) []Event {
	var out []Event
	for _, ev := range c.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
