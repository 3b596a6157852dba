// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies what happened in the capture state machine.
type EventKind uint8

const (
	CaptureStarted EventKind = iota
	ChunkCompleted
	CaptureComplete
	TransferError
)

func (k EventKind) String() string {
	switch k {
	case CaptureStarted:
		return "capture_started"
	case ChunkCompleted:
		return "chunk_completed"
	case CaptureComplete:
		return "capture_complete"
	case TransferError:
		return "transfer_error"
	default:
		return "unknown"
	}
}

// Event is published by the controller without allocating or blocking.
// Rendering it to text is up to the consumer.
type Event struct {
	Kind      EventKind
	Session   uuid.UUID
	At        time.Time
	Requested int
	Captured  int
	Buffer    Buffer // buffer that just finished, for ChunkCompleted
	Err       error  // set for TransferError
}

// EventSink consumes capture events.
type EventSink interface {
	HandleEvent(Event)
}

// Forward delivers every event to each sink in order until ctx is done or
// the channel is closed.
func Forward(ctx context.Context, events <-chan Event, sinks ...EventSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, s := range sinks {
				s.HandleEvent(ev)
			}
		}
	}
}
