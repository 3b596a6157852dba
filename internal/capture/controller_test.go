// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFakeTransfer = errors.New("fake transfer failure")

// fakeSource fills each armed buffer with an increasing ramp when the test
// calls complete. It runs on the test goroutine unless run is started in
// one of its own.
type fakeSource struct {
	pending  []byte
	handler  CompletionHandler
	requests int
	failOn   int // 1-based request number that fails; 0 never fails
	next     int16
}

func (f *fakeSource) Receive(dst []byte, h CompletionHandler) error {
	f.requests++
	if f.requests == f.failOn {
		return errFakeTransfer
	}
	f.pending = dst
	f.handler = h
	return nil
}

func (f *fakeSource) complete() bool {
	dst := f.pending
	if dst == nil {
		return false
	}
	f.pending = nil
	for i := 0; i+1 < len(dst); i += 2 {
		binary.LittleEndian.PutUint16(dst[i:], uint16(f.next))
		f.next++
	}
	f.handler.OnChunkComplete()
	return true
}

func (f *fakeSource) run() {
	for f.complete() {
	}
}

func newTestController(t testing.TB, src Source) *Controller {
	t.Helper()
	c, err := New(src, Config{ChunkBytes: 1024, Capacity: 32 * 512, EventBuffer: 1024})
	require.NoError(t, err)
	return c
}

func assertRamp(t *testing.T, samples []int16) {
	t.Helper()
	for i, s := range samples {
		if s != int16(i) {
			t.Fatalf("sample %d = %d, want %d", i, s, int16(i))
		}
	}
}

func TestCaptureLengths(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		captured  int
		transfers int
	}{
		{"full capacity", 16384, 16384, 32},
		{"one chunk", 512, 512, 1},
		{"two chunks", 1024, 1024, 2},
		{"trailing partial chunk dropped", 1000, 512, 1},
		{"just under three chunks", 1535, 1024, 2},
		{"shorter than one chunk", 300, 0, 0},
		{"single sample", 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			c := newTestController(t, src)

			require.NoError(t, c.Start(tt.requested))
			src.run()

			assert.Equal(t, Complete, c.State())
			assert.Equal(t, tt.transfers, src.requests)

			w, err := c.Waveform()
			require.NoError(t, err)
			assert.Len(t, w, tt.captured)
			assert.Equal(t, (tt.requested/512)*512, len(w))
			assertRamp(t, w)

			s := c.Session()
			assert.Equal(t, tt.requested, s.Requested)
			assert.Equal(t, tt.captured, s.Captured)
			assert.LessOrEqual(t, s.Captured, s.Requested)
			assert.NoError(t, s.TransferStatus)
		})
	}
}

func TestStartValidation(t *testing.T) {
	c := newTestController(t, &fakeSource{})

	assert.ErrorIs(t, c.Start(0), ErrInvalidLength)
	assert.ErrorIs(t, c.Start(-5), ErrInvalidLength)
	assert.ErrorIs(t, c.Start(c.Capacity()+1), ErrInvalidLength)
	assert.Equal(t, Idle, c.State())
}

func TestNewValidation(t *testing.T) {
	_, err := New(&fakeSource{}, Config{ChunkBytes: 1023, Capacity: 1024})
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = New(&fakeSource{}, Config{ChunkBytes: 1024, Capacity: 100})
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = New(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestStartWhileReceivingLeavesSessionUntouched(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	require.NoError(t, c.Start(2048))
	require.True(t, src.complete())
	before := c.Session()

	err := c.Start(512)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.Equal(t, before, c.Session())

	src.run()
	w, err := c.Waveform()
	require.NoError(t, err)
	assert.Len(t, w, 2048)
	assertRamp(t, w)
}

func TestWaveformNotReady(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	_, err := c.Waveform()
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, c.Start(1024))
	_, err = c.Waveform()
	assert.ErrorIs(t, err, ErrNotReady)

	src.complete()
	_, err = c.Waveform()
	assert.ErrorIs(t, err, ErrNotReady)

	src.complete()
	_, err = c.Waveform()
	assert.NoError(t, err)
}

func TestStartFillsSentinel(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	require.NoError(t, c.Start(1000))
	for i, s := range c.store {
		if s != Sentinel {
			t.Fatalf("store[%d] = %d after Start, want sentinel", i, s)
		}
	}
	for _, b := range c.pingpong[BufferB] {
		require.Equal(t, byte(0xFF), b)
	}

	src.run()

	// Samples past the captured region keep the sentinel.
	assert.Equal(t, int16(511), c.store[511])
	for i := 512; i < len(c.store); i++ {
		if c.store[i] != Sentinel {
			t.Fatalf("store[%d] = %d past the capture, want sentinel", i, c.store[i])
		}
	}
}

func TestRestartAfterComplete(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	require.NoError(t, c.Start(1024))
	src.run()
	first := c.Session()

	require.NoError(t, c.Start(512))
	second := c.Session()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 0, second.Captured)
	assert.Equal(t, BufferA, second.Active)
	assert.Equal(t, Receiving, second.State)

	src.run()
	w, err := c.Waveform()
	require.NoError(t, err)
	assert.Len(t, w, 512)
}

func TestActiveBufferAlternates(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)
	require.NoError(t, c.Start(4*512))

	want := []Buffer{BufferB, BufferA, BufferB}
	for i, b := range want {
		require.True(t, src.complete())
		assert.Equal(t, b, c.Session().Active, "after completion %d", i+1)
	}
}

func TestSpuriousCompletionIgnored(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	c.OnChunkComplete()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, uint64(1), c.Spurious())

	require.NoError(t, c.Start(512))
	src.run()
	c.OnChunkComplete()

	assert.Equal(t, uint64(2), c.Spurious())
	w, err := c.Waveform()
	require.NoError(t, err)
	assert.Len(t, w, 512)
}

func TestFirstTransferFailure(t *testing.T) {
	src := &fakeSource{failOn: 1}
	c := newTestController(t, src)

	err := c.Start(1024)
	assert.ErrorIs(t, err, errFakeTransfer)
	assert.Equal(t, Idle, c.State())
	assert.ErrorIs(t, c.Session().TransferStatus, errFakeTransfer)
	assert.ErrorIs(t, c.Wait(context.Background()), ErrNotReady)

	// The controller is usable again.
	src.failOn = 0
	require.NoError(t, c.Start(512))
	src.run()
	assert.Equal(t, Complete, c.State())
}

func TestRearmFailureEndsSession(t *testing.T) {
	src := &fakeSource{failOn: 3}
	c := newTestController(t, src)

	require.NoError(t, c.Start(8*512))
	src.run()

	assert.Equal(t, Complete, c.State())
	s := c.Session()
	assert.ErrorIs(t, s.TransferStatus, errFakeTransfer)
	// The third request failed, so only the first two transfers landed.
	assert.Equal(t, 2*512, s.Captured)
	assert.Equal(t, 3, src.requests)

	w, err := c.Waveform()
	require.NoError(t, err)
	assertRamp(t, w)

	var sawErr bool
	for len(c.Events()) > 0 {
		ev := <-c.Events()
		if ev.Kind == TransferError {
			sawErr = true
			assert.ErrorIs(t, ev.Err, errFakeTransfer)
		}
	}
	assert.True(t, sawErr, "expected a transfer_error event")
}

func TestEventsSequence(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	require.NoError(t, c.Start(1024))
	src.run()

	var kinds []EventKind
	var last Event
	for len(c.Events()) > 0 {
		last = <-c.Events()
		kinds = append(kinds, last.Kind)
		assert.Equal(t, c.Session().ID, last.Session)
	}
	assert.Equal(t, []EventKind{CaptureStarted, ChunkCompleted, ChunkCompleted, CaptureComplete}, kinds)
	assert.Equal(t, 1024, last.Captured)
	assert.Zero(t, c.Dropped())
}

func TestEventsDropWhenFull(t *testing.T) {
	src := &fakeSource{}
	c, err := New(src, Config{ChunkBytes: 1024, Capacity: 4096, EventBuffer: 2})
	require.NoError(t, err)

	require.NoError(t, c.Start(4096))
	src.run()

	assert.Equal(t, Complete, c.State())
	assert.Len(t, c.Events(), 2)
	// started + 8 chunks + complete, two of which fit.
	assert.Equal(t, uint64(8), c.Dropped())
}

func TestWaitConcurrentSource(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src)

	require.NoError(t, c.Start(16384))
	go src.run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))

	w, err := c.Waveform()
	require.NoError(t, err)
	assert.Len(t, w, 16384)
	assertRamp(t, w)
}

func TestWaitHonoursContext(t *testing.T) {
	c := newTestController(t, &fakeSource{})
	assert.ErrorIs(t, c.Wait(context.Background()), ErrNotReady)

	require.NoError(t, c.Start(1024))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.Canceled)
	assert.Equal(t, Receiving, c.State())
}

type recordingSink struct{ events []Event }

func (r *recordingSink) HandleEvent(ev Event) { r.events = append(r.events, ev) }

func TestForward(t *testing.T) {
	events := make(chan Event, 3)
	events <- Event{Kind: CaptureStarted}
	events <- Event{Kind: ChunkCompleted}
	events <- Event{Kind: CaptureComplete}
	close(events)

	a, b := &recordingSink{}, &recordingSink{}
	Forward(context.Background(), events, a, b)

	assert.Len(t, a.events, 3)
	assert.Equal(t, a.events, b.events)
}

func TestOnChunkCompleteDoesNotAllocate(t *testing.T) {
	src := &fakeSource{}
	c, err := New(src, Config{ChunkBytes: 1024, Capacity: 512 * 256, EventBuffer: 4})
	require.NoError(t, err)
	require.NoError(t, c.Start(512*256))

	allocs := testing.AllocsPerRun(100, func() {
		src.complete()
	})
	if allocs > 0 {
		t.Errorf("OnChunkComplete allocated memory: got %.1f allocs, want 0", allocs)
	}
	assert.Equal(t, Receiving, c.State())
}
