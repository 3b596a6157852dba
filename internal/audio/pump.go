// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"wakeword/internal/capture"
	"wakeword/internal/log"
)

// SampleReader supplies mono 16-bit samples.
type SampleReader interface {
	Read(dst []int16) (int, error)
}

// PumpSource is a capture.Source that fills transfers from a SampleReader
// on its own goroutine. With a non-zero sample rate each chunk is released
// at the pace real hardware would deliver it.
type PumpSource struct {
	reader     SampleReader
	sampleRate int

	armed   chan transfer
	closed  atomic.Bool
	samples []int16

	readErrors atomic.Uint64

	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPumpSource returns a source reading from r. A sampleRate of 0 delivers
// chunks as fast as the controller re-arms.
func NewPumpSource(r SampleReader, sampleRate int) *PumpSource {
	return &PumpSource{
		reader:     r,
		sampleRate: sampleRate,
		armed:      make(chan transfer, 1),
		stop:       make(chan struct{}),
	}
}

// Start launches the pump goroutine. It runs until ctx is done or Close.
func (p *PumpSource) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run(ctx)
	})
}

// Close stops accepting transfers and waits for the pump to exit.
func (p *PumpSource) Close() error {
	p.stopOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
	})
	p.wg.Wait()
	return nil
}

// Receive arms one transfer into dst.
func (p *PumpSource) Receive(dst []byte, h capture.CompletionHandler) error {
	if p.closed.Load() {
		return ErrSourceClosed
	}
	select {
	case p.armed <- transfer{dst: dst, h: h}:
		return nil
	default:
		return ErrTransferPending
	}
}

// ReadErrors returns the number of chunks padded with silence because the
// reader failed.
func (p *PumpSource) ReadErrors() uint64 { return p.readErrors.Load() }

func (p *PumpSource) run(ctx context.Context) {
	defer p.wg.Done()

	var timer *time.Timer
	var next time.Time

	for {
		var t transfer
		select {
		case <-ctx.Done():
			p.closed.Store(true)
			return
		case <-p.stop:
			return
		case t = <-p.armed:
		}

		n := len(t.dst) / 2
		if cap(p.samples) < n {
			p.samples = make([]int16, n)
		}
		buf := p.samples[:n]
		if got := p.fill(buf); got < n {
			clear(buf[got:])
		}
		fillPCM16(t.dst, buf)

		if p.sampleRate > 0 {
			now := time.Now()
			if next.Before(now) {
				next = now
			}
			next = next.Add(time.Duration(n) * time.Second / time.Duration(p.sampleRate))
			if timer == nil {
				timer = time.NewTimer(time.Until(next))
				defer timer.Stop()
			} else {
				timer.Reset(time.Until(next))
			}
			select {
			case <-ctx.Done():
				p.closed.Store(true)
				return
			case <-p.stop:
				return
			case <-timer.C:
			}
		}

		t.h.OnChunkComplete()
	}
}

func (p *PumpSource) fill(buf []int16) int {
	filled := 0
	for filled < len(buf) {
		k, err := p.reader.Read(buf[filled:])
		filled += k
		if err != nil {
			if !errors.Is(err, io.EOF) || filled < len(buf) {
				p.readErrors.Add(1)
				log.Warnf("Pump: read failed after %d of %d samples: %v", filled, len(buf), err)
			}
			return filled
		}
		if k == 0 {
			return filled
		}
	}
	return filled
}

// ToneReader generates a continuous sine wave.
type ToneReader struct {
	Frequency  float64
	Amplitude  float64 // Fraction of full scale.
	SampleRate float64

	phase float64
}

// Read fills dst with the next samples of the tone. It never fails.
func (r *ToneReader) Read(dst []int16) (int, error) {
	step := 2 * math.Pi * r.Frequency / r.SampleRate
	for i := range dst {
		dst[i] = int16(math.Round(math.Sin(r.phase) * math.MaxInt16 * r.Amplitude))
		r.phase += step
		if r.phase >= 2*math.Pi {
			r.phase -= 2 * math.Pi
		}
	}
	return len(dst), nil
}

// LoopReader replays a clip forever.
type LoopReader struct {
	samples []int16
	pos     int
}

// NewLoopReader returns a reader over samples. The slice is not copied.
func NewLoopReader(samples []int16) *LoopReader {
	return &LoopReader{samples: samples}
}

// Read copies the next samples, wrapping to the start at the end of the
// clip. An empty clip returns io.EOF.
func (r *LoopReader) Read(dst []int16) (int, error) {
	if len(r.samples) == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(dst) {
		c := copy(dst[n:], r.samples[r.pos:])
		n += c
		r.pos += c
		if r.pos == len(r.samples) {
			r.pos = 0
		}
	}
	return n, nil
}
