// SPDX-License-Identifier: MIT
package capture

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyInProgress is returned by Start while a capture is receiving.
	ErrAlreadyInProgress = errors.New("capture: already in progress")
	// ErrNotReady is returned when the waveform is read before a capture
	// has completed.
	ErrNotReady = errors.New("capture: not ready")
	// ErrInvalidLength is returned for a requested length that is not
	// positive or exceeds the waveform capacity.
	ErrInvalidLength = errors.New("capture: invalid length")
)

// State is the lifecycle of a capture session.
type State uint32

const (
	Idle State = iota
	Receiving
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Receiving:
		return "receiving"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Buffer names one half of the ping-pong pair.
type Buffer uint32

const (
	BufferA Buffer = iota
	BufferB
)

func (b Buffer) String() string {
	if b == BufferA {
		return "A"
	}
	return "B"
}

// Session is a snapshot of the current (or last) capture.
type Session struct {
	ID        uuid.UUID
	Requested int
	Captured  int
	State     State
	Active    Buffer
	StartedAt time.Time
	// TransferStatus holds the error of a failed transfer request, if any.
	// It is only reported once the session has left Receiving.
	TransferStatus error
}

// Sentinel is the value every sample holds before it is captured.
const Sentinel int16 = -1

const sentinelByte = 0xFF
