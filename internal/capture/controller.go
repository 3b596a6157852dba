// SPDX-License-Identifier: MIT
/*
Package capture assembles a bounded waveform from a stream of fixed-size
transfer completions using a pair of ping-pong buffers.

Thread Safety:
  - The state word is the only synchronisation between the foreground and
    the completion handler; it is written with atomic release/acquire
  - Session fields other than the state are written by Start while not
    Receiving, and by OnChunkComplete while Receiving
  - The waveform is read by the foreground only after Complete is observed
  - OnChunkComplete never blocks, never allocates and never takes a lock
*/
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// CompletionHandler is notified once per finished transfer.
type CompletionHandler interface {
	OnChunkComplete()
}

// Source is the hardware side of a capture. Receive arms one transfer of
// len(dst) bytes into dst and returns immediately; when the transfer is
// done the source calls h.OnChunkComplete exactly once. Completions must be
// delivered one at a time.
type Source interface {
	Receive(dst []byte, h CompletionHandler) error
}

// Config sizes the controller's buffers.
type Config struct {
	ChunkBytes  int // Bytes per transfer; 16-bit samples, so must be even.
	Capacity    int // Waveform capacity in samples.
	EventBuffer int // Event channel depth; events beyond it are dropped.
}

// DefaultConfig is 512-sample transfers into a 32-chunk waveform.
func DefaultConfig() Config {
	return Config{
		ChunkBytes:  1024,
		Capacity:    32 * 512,
		EventBuffer: 256,
	}
}

// Controller is the capture state machine.
type Controller struct {
	src          Source
	chunkBytes   int
	chunkSamples int

	pingpong [2][]byte
	store    []int16

	// Handoff word, see package doc.
	state atomic.Uint32

	// Written by Start only.
	id        uuid.UUID
	requested int
	startedAt time.Time
	done      chan struct{}

	// Written by the handler while Receiving.
	captured    atomic.Int64
	active      atomic.Uint32
	transferErr error

	events   chan Event
	dropped  atomic.Uint64
	spurious atomic.Uint64

	// Serialises foreground callers; never taken by the handler.
	mu sync.Mutex
}

// New allocates every buffer the controller will ever use.
func New(src Source, cfg Config) (*Controller, error) {
	if src == nil {
		return nil, fmt.Errorf("capture: nil source")
	}
	if cfg.ChunkBytes <= 0 || cfg.ChunkBytes%2 != 0 {
		return nil, fmt.Errorf("%w: chunk size must be a positive even byte count, got %d",
			ErrInvalidLength, cfg.ChunkBytes)
	}
	chunkSamples := cfg.ChunkBytes / 2
	if cfg.Capacity < chunkSamples {
		return nil, fmt.Errorf("%w: capacity %d is smaller than one chunk (%d samples)",
			ErrInvalidLength, cfg.Capacity, chunkSamples)
	}
	if cfg.EventBuffer < 0 {
		cfg.EventBuffer = 0
	}

	c := &Controller{
		src:          src,
		chunkBytes:   cfg.ChunkBytes,
		chunkSamples: chunkSamples,
		store:        make([]int16, cfg.Capacity),
		events:       make(chan Event, cfg.EventBuffer),
	}
	c.pingpong[BufferA] = make([]byte, cfg.ChunkBytes)
	c.pingpong[BufferB] = make([]byte, cfg.ChunkBytes)
	return c, nil
}

// ChunkSamples returns the number of samples per transfer.
func (c *Controller) ChunkSamples() int { return c.chunkSamples }

// Capacity returns the waveform capacity in samples.
func (c *Controller) Capacity() int { return len(c.store) }

// Start begins a capture of up to requested samples. Only whole chunks are
// captured, so the result may be shorter than requested.
func (c *Controller) Start(requested int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) == Receiving {
		return ErrAlreadyInProgress
	}
	if requested <= 0 || requested > len(c.store) {
		return fmt.Errorf("%w: requested %d samples, capacity is %d",
			ErrInvalidLength, requested, len(c.store))
	}

	c.id = uuid.New()
	c.requested = requested
	c.startedAt = time.Now()
	c.done = make(chan struct{})
	c.captured.Store(0)
	c.active.Store(uint32(BufferA))
	c.transferErr = nil

	for i := range c.pingpong[BufferA] {
		c.pingpong[BufferA][i] = sentinelByte
		c.pingpong[BufferB][i] = sentinelByte
	}
	for i := range c.store {
		c.store[i] = Sentinel
	}

	c.emit(Event{Kind: CaptureStarted, Session: c.id, At: c.startedAt, Requested: requested})

	if requested < c.chunkSamples {
		// Not even one chunk fits.
		c.state.Store(uint32(Complete))
		close(c.done)
		c.emit(Event{Kind: CaptureComplete, Session: c.id, At: time.Now(), Requested: requested})
		return nil
	}

	c.state.Store(uint32(Receiving))
	if err := c.src.Receive(c.pingpong[BufferA], c); err != nil {
		c.transferErr = err
		c.state.Store(uint32(Idle))
		close(c.done)
		return fmt.Errorf("capture: first transfer request failed: %w", err)
	}
	return nil
}

// OnChunkComplete is called by the source when the active buffer is full.
func (c *Controller) OnChunkComplete() {
	if State(c.state.Load()) != Receiving {
		c.spurious.Add(1)
		return
	}

	finished := Buffer(c.active.Load())
	next := finished ^ 1
	c.active.Store(uint32(next))

	captured := int(c.captured.Load())
	complete := c.requested-(captured+c.chunkSamples) < c.chunkSamples
	if !complete {
		// Re-arm before copying so no samples are missed.
		if err := c.src.Receive(c.pingpong[next], c); err != nil {
			c.transferErr = err
			complete = true
			c.emit(Event{Kind: TransferError, Session: c.id, At: time.Now(),
				Requested: c.requested, Captured: captured, Buffer: next, Err: err})
		}
	}

	n := min(c.chunkSamples, c.requested-captured)
	src := c.pingpong[finished]
	dst := c.store[captured : captured+n]
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	captured += n
	c.captured.Store(int64(captured))

	c.emit(Event{Kind: ChunkCompleted, Session: c.id, At: time.Now(),
		Requested: c.requested, Captured: captured, Buffer: finished})

	if complete {
		// Copy what the event needs before handing the session back.
		done := Event{Kind: CaptureComplete, Session: c.id, At: time.Now(),
			Requested: c.requested, Captured: captured}
		ch := c.done
		c.state.Store(uint32(Complete))
		close(ch)
		c.emit(done)
	}
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.dropped.Add(1)
	}
}

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State(c.state.Load())
	s := Session{
		ID:        c.id,
		Requested: c.requested,
		Captured:  int(c.captured.Load()),
		State:     st,
		Active:    Buffer(c.active.Load()),
		StartedAt: c.startedAt,
	}
	if st != Receiving {
		s.TransferStatus = c.transferErr
	}
	return s
}

// Waveform returns the captured samples. The slice aliases the store and
// must not be modified; it stays valid until the next Start.
func (c *Controller) Waveform() ([]int16, error) {
	if State(c.state.Load()) != Complete {
		return nil, ErrNotReady
	}
	n := int(c.captured.Load())
	return c.store[:n:n], nil
}

// Wait blocks until the current session completes or ctx is done. It
// returns ErrNotReady if no session is running or completed.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return ErrNotReady
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if State(c.state.Load()) != Complete {
		return ErrNotReady
	}
	return nil
}

// Events returns the event stream. Events that do not fit in the buffer
// are counted by Dropped and discarded.
func (c *Controller) Events() <-chan Event { return c.events }

// Dropped returns the number of events discarded on a full channel.
func (c *Controller) Dropped() uint64 { return c.dropped.Load() }

// Spurious returns the number of completions received while not Receiving.
func (c *Controller) Spurious() uint64 { return c.spurious.Load() }
