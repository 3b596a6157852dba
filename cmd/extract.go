package cmd

import (
	"fmt"
	"io"
	"time"

	"wakeword/internal/audio"
	"wakeword/internal/config"
	"wakeword/internal/filterbank"
	"wakeword/internal/inference"

	"github.com/spf13/afero"
)

// runExtract computes features over a clip offline and optionally stores
// them as a model input tensor.
func runExtract(w io.Writer, cfg *config.Config, path string, hop int, inputOut string) error {
	return extractFile(afero.NewOsFs(), w, cfg, path, hop, inputOut)
}

func extractFile(fs afero.Fs, w io.Writer, cfg *config.Config, path string, hop int, inputOut string) error {
	if hop <= 0 {
		hop = cfg.Features.HopLen
	}

	clip, err := audio.ReadWAV(fs, path)
	if err != nil {
		return err
	}
	if float64(clip.SampleRate) != cfg.Capture.SampleRate {
		appLog.Warnf("%s is %d Hz, the filter bank is built for %.0f Hz", path, clip.SampleRate, cfg.Capture.SampleRate)
	}

	extractor, err := newExtractor(fs, cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	frames, err := extractor.Frames(clip.Samples, hop)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintf(w, "%s: %d samples at %d Hz, %d frames of %d values in %s\n",
		path, len(clip.Samples), clip.SampleRate, len(frames), extractor.NumFilters(), elapsed)
	fmt.Fprintf(w, "Output: ")
	for _, v := range frames[0] {
		fmt.Fprintf(w, "%.3f, ", v)
	}
	fmt.Fprintln(w)

	if inputOut == "" {
		return nil
	}
	q := inference.Quantize(frames, cfg.Inference.InputScale, cfg.Inference.InputZeroPoint, cfg.Inference.InputSize)
	if err := afero.WriteFile(fs, inputOut, q, 0o644); err != nil {
		return fmt.Errorf("writing input tensor: %w", err)
	}
	fmt.Fprintf(w, "Wrote %d-byte input tensor to %s\n", len(q), inputOut)
	return nil
}

// writeFilterBank stores the mel bank generated from the features config
// as an asset that features.filterbank_path can point at.
func writeFilterBank(fs afero.Fs, w io.Writer, cfg *config.Config, path string) error {
	fb, err := melBank(cfg)
	if err != nil {
		return err
	}
	if err := filterbank.Save(fs, path, fb); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %d filters over %d bins to %s\n", fb.NumFilters(), fb.SpecLen(), path)
	return nil
}
