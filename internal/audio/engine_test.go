package audio

import (
	"bytes"
	"errors"
	"testing"

	"wakeword/internal/capture"
	"wakeword/pkg/utils"
)

type countingHandler struct{ calls int }

func (h *countingHandler) OnChunkComplete() { h.calls++ }

func newTestStreamSource(chunkSamples int) *PortAudioSource {
	return &PortAudioSource{
		config: StreamConfig{SampleRate: 16000, ChunkSamples: chunkSamples},
		armed:  make(chan transfer, 1),
	}
}

func TestStreamCallbackFillsArmedBuffer(t *testing.T) {
	s := newTestStreamSource(4)
	h := &countingHandler{}
	dst := make([]byte, 8)

	if err := s.Receive(dst, h); err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if err := s.Receive(make([]byte, 8), h); !errors.Is(err, ErrTransferPending) {
		t.Errorf("second Receive = %v, want ErrTransferPending", err)
	}

	s.processInputStream([]int16{1, -1, 256, -32768})

	if h.calls != 1 {
		t.Fatalf("handler called %d times, want 1", h.calls)
	}
	if want := utils.EncodePCM16([]int16{1, -1, 256, -32768}); !bytes.Equal(dst, want) {
		t.Errorf("transfer bytes = %v, want %v", dst, want)
	}

	// Nothing armed: the callback is dropped and counted.
	s.processInputStream([]int16{9, 9, 9, 9})
	if h.calls != 1 || s.Overruns() != 1 {
		t.Errorf("unarmed callback: calls=%d overruns=%d", h.calls, s.Overruns())
	}
}

func TestStreamCallbackPadsShortBuffer(t *testing.T) {
	s := newTestStreamSource(4)
	h := &countingHandler{}
	dst := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	_ = s.Receive(dst, h)
	s.processInputStream([]int16{7, 7})

	if s.ShortChunks() != 1 {
		t.Errorf("ShortChunks() = %d, want 1", s.ShortChunks())
	}
	for i := 4; i < 8; i++ {
		if dst[i] != 0 {
			t.Errorf("byte %d = %#x, want zero padding", i, dst[i])
		}
	}
}

func TestStreamSourceClosed(t *testing.T) {
	s := newTestStreamSource(4)
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := s.Receive(make([]byte, 8), &countingHandler{}); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Receive after Close = %v, want ErrSourceClosed", err)
	}
}

func TestStreamDrivesController(t *testing.T) {
	const chunk = 512
	s := newTestStreamSource(chunk)
	ctrl, err := capture.New(s, capture.Config{ChunkBytes: 2 * chunk, Capacity: 4 * chunk, EventBuffer: 16})
	if err != nil {
		t.Fatalf("capture.New error: %v", err)
	}

	input := utils.GenerateRamp(4*chunk, 0)
	if err := ctrl.Start(3 * chunk); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	for i := 0; i < 4; i++ {
		s.processInputStream(input[i*chunk : (i+1)*chunk])
	}

	w, err := ctrl.Waveform()
	if err != nil {
		t.Fatalf("Waveform error: %v", err)
	}
	if len(w) != 3*chunk {
		t.Fatalf("captured %d samples, want %d", len(w), 3*chunk)
	}
	for i := range w {
		if w[i] != input[i] {
			t.Fatalf("sample %d = %d, want %d", i, w[i], input[i])
		}
	}
	// The fourth callback arrived after completion with nothing armed.
	if s.Overruns() != 1 {
		t.Errorf("Overruns() = %d, want 1", s.Overruns())
	}
}

// TestStreamCallbackHotPath verifies the callback does not allocate.
func TestStreamCallbackHotPath(t *testing.T) {
	s := newTestStreamSource(1024)
	h := &countingHandler{}
	dst := make([]byte, 2048)
	in := utils.GenerateComplexWave(1024, 16000)

	allocs := testing.AllocsPerRun(100, func() {
		_ = s.Receive(dst, h)
		s.processInputStream(in)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in stream callback, got %.1f", allocs)
	}
}

func BenchmarkHotPath(b *testing.B) {
	s := newTestStreamSource(1024)
	h := &countingHandler{}
	dst := make([]byte, 2048)
	in := utils.GenerateComplexWave(1024, 16000)

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_ = s.Receive(dst, h)
		s.processInputStream(in)
	}
}
