package audit

import (
	"encoding/json"
	"io"
	"sync"
)

// Sink receives one progress line per state transition. Implementations must
// tolerate being called from the goroutine running the audit.
type Sink func(line string)

// NopSink discards progress lines.
func NopSink(string) {}

// Event is one NDJSON line in a streamed audit response.
type Event struct {
	Type    string  `json:"type"` // "log", "result" or "error"
	Message string  `json:"message,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

// EventWriter streams events as NDJSON to an underlying writer, flushing
// after every event so clients see progress as it happens.
type EventWriter struct {
	mu  sync.Mutex
	w   io.Writer
	fl  flusher
	enc *json.Encoder
}

type flusher interface {
	Flush()
}

// NewEventWriter wraps w. If w implements Flush, each event is flushed as
// it is written.
func NewEventWriter(w io.Writer) *EventWriter {
	ew := &EventWriter{w: w, enc: json.NewEncoder(w)}
	if f, ok := w.(flusher); ok {
		ew.fl = f
	}
	return ew
}

// Write emits one event line.
func (e *EventWriter) Write(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(ev); err != nil {
		return err
	}
	if e.fl != nil {
		e.fl.Flush()
	}
	return nil
}

// Log emits a log event, ignoring write errors; a broken client connection
// must not abort the audit itself.
func (e *EventWriter) Log(line string) {
	_ = e.Write(Event{Type: "log", Message: line})
}
