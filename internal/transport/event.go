// Package transport implements the streaming edit wire protocol: framed
// chunk/done/error events, their encoder on the responder side, and the
// initiator clients.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// EventType is the kind of a streamed event.
type EventType string

const (
	// EventChunk carries a text fragment to append.
	EventChunk EventType = "chunk"
	// EventDone terminates a successful stream.
	EventDone EventType = "done"
	// EventError terminates a failed stream with a message.
	EventError EventType = "error"
	// EventCancel is sent by a WebSocket initiator to stop its exchange.
	EventCancel EventType = "cancel"
)

// Terminal reports whether t ends a stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event is one framed unit of the stream.
type Event struct {
	Type EventType `json:"type"`
	Data string    `json:"data"`
}

// Chunk returns a chunk event.
func Chunk(text string) Event { return Event{Type: EventChunk, Data: text} }

// Done returns the success terminal event.
func Done() Event { return Event{Type: EventDone} }

// Failure returns the error terminal event.
func Failure(msg string) Event { return Event{Type: EventError, Data: msg} }

// WriteSSE writes ev as one server-sent event.
func WriteSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// Decoder reassembles events from arbitrarily split reads of an SSE body.
// Only "data:" lines carry events; a line cut by a read boundary is held
// until the rest arrives. Malformed units are dropped.
type Decoder struct {
	buf    []byte
	logger *slog.Logger
}

// NewDecoder returns a Decoder. A nil logger uses slog.Default.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Feed consumes p and returns every event completed by it, in order.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Flush parses whatever unterminated line remains at end of stream.
func (d *Decoder) Flush() []Event {
	line := d.buf
	d.buf = nil
	if ev, ok := d.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Pending reports whether a partial unit is buffered.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0
}

func (d *Decoder) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return Event{}, false
	}
	data = bytes.TrimPrefix(data, []byte(" "))

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		d.logger.Debug("skipping malformed stream event", "error", err, "bytes", len(data))
		return Event{}, false
	}
	switch ev.Type {
	case EventChunk, EventDone, EventError:
		return ev, true
	default:
		d.logger.Debug("skipping unknown stream event", "type", ev.Type)
		return Event{}, false
	}
}
