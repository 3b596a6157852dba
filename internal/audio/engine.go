// SPDX-License-Identifier: MIT
/*
Package audio provides the hardware side of a capture:
- PortAudio input stream delivering one chunk per callback
- Paced replay of WAV files and synthetic tones
- Device discovery
- WAV import and export of captured waveforms

Thread Safety:
- Transfers are armed through a one-slot channel, never a lock
- Buffers are owned by the capture controller; sources only fill them
- The stream callback locks its OS thread while processing
*/
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"wakeword/internal/capture"

	"github.com/gordonklaus/portaudio"
)

var (
	// ErrTransferPending is returned when a transfer is armed while another
	// one is still outstanding.
	ErrTransferPending = errors.New("audio: transfer already pending")
	// ErrSourceClosed is returned by Receive after the source has stopped.
	ErrSourceClosed = errors.New("audio: source closed")
)

type transfer struct {
	dst []byte
	h   capture.CompletionHandler
}

// StreamConfig describes the PortAudio input stream.
type StreamConfig struct {
	DeviceID     int
	SampleRate   float64
	ChunkSamples int // Frames per callback; one callback completes one transfer.
	LowLatency   bool
}

// PortAudioSource is a capture.Source backed by a mono int16 PortAudio
// input stream.
type PortAudioSource struct {
	config  StreamConfig
	device  *portaudio.DeviceInfo
	latency time.Duration
	stream  *portaudio.Stream

	armed   chan transfer
	closed  atomic.Bool
	overrun atomic.Uint64 // Callbacks that found no armed transfer.
	short   atomic.Uint64 // Callbacks smaller than the armed buffer.
}

// NewPortAudioSource resolves the device. PortAudio must be initialised.
func NewPortAudioSource(cfg StreamConfig) (*PortAudioSource, error) {
	if cfg.ChunkSamples <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", cfg.ChunkSamples)
	}
	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	s := &PortAudioSource{
		config: cfg,
		device: device,
		armed:  make(chan transfer, 1),
	}
	if cfg.LowLatency {
		s.latency = device.DefaultLowInputLatency
	} else {
		s.latency = device.DefaultHighInputLatency
	}
	return s, nil
}

// Device returns the resolved input device.
func (s *PortAudioSource) Device() *portaudio.DeviceInfo { return s.device }

// Start opens and starts the input stream.
func (s *PortAudioSource) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   s.device,
			Latency:  s.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: s.config.ChunkSamples,
		SampleRate:      s.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.processInputStream)
	if err != nil {
		return err
	}
	s.stream = stream

	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		s.stream = nil
		return err
	}
	return nil
}

// Close stops the stream. Pending transfers are abandoned.
func (s *PortAudioSource) Close() error {
	s.closed.Store(true)
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			return err
		}
		if err := s.stream.Close(); err != nil {
			return err
		}
		s.stream = nil
	}
	return nil
}

// Receive arms the next callback to fill dst.
func (s *PortAudioSource) Receive(dst []byte, h capture.CompletionHandler) error {
	if s.closed.Load() {
		return ErrSourceClosed
	}
	select {
	case s.armed <- transfer{dst: dst, h: h}:
		return nil
	default:
		return ErrTransferPending
	}
}

// Overruns returns the number of chunks delivered while nothing was armed.
// Between captures this simply counts idle callbacks.
func (s *PortAudioSource) Overruns() uint64 { return s.overrun.Load() }

// ShortChunks returns the number of callbacks that delivered fewer samples
// than the armed buffer holds.
func (s *PortAudioSource) ShortChunks() uint64 { return s.short.Load() }

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses controller-owned buffers only
// - No dynamic allocations in the hot path
func (s *PortAudioSource) processInputStream(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var t transfer
	select {
	case t = <-s.armed:
	default:
		s.overrun.Add(1)
		return
	}

	if fillPCM16(t.dst, in) < len(t.dst)/2 {
		s.short.Add(1)
	}
	t.h.OnChunkComplete()
}

// fillPCM16 encodes samples into dst as little-endian PCM, padding with
// silence when fewer samples than dst holds are available. It returns the
// number of samples copied.
func fillPCM16(dst []byte, samples []int16) int {
	n := min(len(dst)/2, len(samples))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(samples[i]))
	}
	for i := 2 * n; i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}
