// Package transport fans feature frames and capture events out to
// observers: the WebSocket hub, the UDP publisher and the log.
package transport

import (
	"errors"
	"time"

	"wakeword/internal/capture"
	"wakeword/internal/features"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// FrameMessage carries the frames of one extraction pass.
type FrameMessage struct {
	Type    string           `json:"type"`
	Session string           `json:"session"`
	Hop     int              `json:"hop"`
	Frames  []features.Frame `json:"frames"`
}

// NewFrameMessage wraps frames extracted from session.
func NewFrameMessage(session string, hop int, frames []features.Frame) FrameMessage {
	return FrameMessage{Type: "frames", Session: session, Hop: hop, Frames: frames}
}

// EventMessage is the wire form of a capture.Event.
type EventMessage struct {
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	Session   string    `json:"session"`
	At        time.Time `json:"at"`
	Requested int       `json:"requested"`
	Captured  int       `json:"captured"`
	Buffer    string    `json:"buffer"`
	Error     string    `json:"error,omitempty"`
}

func NewEventMessage(ev capture.Event) EventMessage {
	msg := EventMessage{
		Type:      "event",
		Kind:      ev.Kind.String(),
		Session:   ev.Session.String(),
		At:        ev.At,
		Requested: ev.Requested,
		Captured:  ev.Captured,
		Buffer:    ev.Buffer.String(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// Fanout sends every message to all of its transports.
type Fanout []Transport

// Send delivers data to each transport and joins their errors.
func (f Fanout) Send(data any) error {
	var errs []error
	for _, t := range f {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes each transport and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, t := range f {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventForwarder implements capture.EventSink by sending each event to a
// transport.
type EventForwarder struct {
	t Transport
}

func NewEventForwarder(t Transport) *EventForwarder {
	return &EventForwarder{t: t}
}

func (f *EventForwarder) HandleEvent(ev capture.Event) {
	if err := f.t.Send(NewEventMessage(ev)); err != nil {
		tLog.Debugf("dropping %s event: %v", ev.Kind, err)
	}
}

// Ensure Fanout satisfies the interface at compile time.
var _ Transport = Fanout(nil)
