package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// WavReader streams the first channel of a PCM WAV file as 16-bit samples.
// With loop set it starts over at the end of the file instead of returning
// io.EOF.
type WavReader struct {
	file     afero.File
	decoder  *wav.Decoder
	buf      *goaudio.IntBuffer
	shift    uint
	channels int
	rate     int
	loop     bool
}

// OpenWavReader opens path on fs.
func OpenWavReader(fs afero.Fs, path string, loop bool) (*WavReader, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	r := &WavReader{file: file, loop: loop}
	if err := r.reset(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	var shift uint
	switch r.decoder.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		file.Close()
		return nil, fmt.Errorf("%w: unsupported bit depth: %d", ErrInvalidWAV, r.decoder.BitDepth)
	}
	r.shift = shift
	r.channels = int(r.decoder.NumChans)
	r.rate = int(r.decoder.SampleRate)
	if r.channels < 1 {
		file.Close()
		return nil, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	r.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{SampleRate: r.rate, NumChannels: r.channels},
	}
	return r, nil
}

// reset positions a fresh decoder at the start of the file.
func (r *WavReader) reset() error {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r.decoder = wav.NewDecoder(r.file)
	if !r.decoder.IsValidFile() {
		return ErrInvalidWAV
	}
	return nil
}

// SampleRate returns the file's sample rate.
func (r *WavReader) SampleRate() int { return r.rate }

// Read fills dst with the next samples.
func (r *WavReader) Read(dst []int16) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * r.channels
	if cap(r.buf.Data) < need {
		r.buf.Data = make([]int, need)
	}
	r.buf.Data = r.buf.Data[:need]

	n, err := r.decoder.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("error reading WAV data: %w", err)
	}
	if n == 0 {
		if !r.loop {
			return 0, io.EOF
		}
		if err := r.reset(); err != nil {
			return 0, err
		}
		if n, err = r.decoder.PCMBuffer(r.buf); n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
	}

	frames := n / r.channels
	for i := 0; i < frames; i++ {
		dst[i] = int16(r.buf.Data[i*r.channels] >> r.shift)
	}
	return frames, nil
}

// Close closes the file.
func (r *WavReader) Close() error {
	return r.file.Close()
}
