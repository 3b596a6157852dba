package audio

import (
	"errors"
	"fmt"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// ErrInvalidWAV is returned for files the decoder cannot use.
var ErrInvalidWAV = errors.New("audio: invalid WAV file")

// Clip is a decoded mono recording.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// WriteWAV stores samples as a mono 16-bit WAV file.
func WriteWAV(fs afero.Fs, path string, samples []int16, sampleRate int) error {
	file, err := fs.Create(path)
	if err != nil {
		return err
	}

	param := wave.WriterParam{
		Out:           file,
		Channel:       1,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		file.Close()
		return err
	}

	if _, err := waveWriter.WriteSample16(samples); err != nil {
		waveWriter.Close()
		return err
	}

	// Close writes the header sizes and closes the file.
	return waveWriter.Close()
}

// EncodeWAV renders samples as the bytes of a mono 16-bit WAV file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	fs := afero.NewMemMapFs()
	if err := WriteWAV(fs, "waveform.wav", samples, sampleRate); err != nil {
		return nil, err
	}
	return afero.ReadFile(fs, "waveform.wav")
}

// ReadWAV decodes a PCM WAV file. Only the first channel is kept and
// samples deeper than 16 bits are truncated to their top 16 bits.
func ReadWAV(fs afero.Fs, path string) (Clip, error) {
	file, err := fs.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("error reading WAV data: %w", err)
	}

	var shift uint
	switch decoder.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		return Clip{}, fmt.Errorf("%w: unsupported bit depth: %d", ErrInvalidWAV, decoder.BitDepth)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return Clip{}, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(buf.Data[i*channels] >> shift)
	}

	return Clip{Samples: samples, SampleRate: int(decoder.SampleRate)}, nil
}
