// SPDX-License-Identifier: MIT

// Package command is the text command surface of the test platform. Commands
// arrive as short lines on a byte stream or over HTTP and drive capture,
// feature extraction and inference.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"wakeword/internal/capture"
	"wakeword/internal/diag"
	"wakeword/internal/features"
	"wakeword/internal/inference"
	"wakeword/internal/log"
	"wakeword/internal/transport"
)

// PlatformName is the reply to the name command.
const PlatformName = "streaming wakeword test platform"

// FeaturesLabel selects the frames of the last extraction as model input.
const FeaturesLabel = "features"

var cmdLog = log.Component("Command")

// Capture is the part of capture.Controller the dispatcher drives.
type Capture interface {
	Start(requested int) error
	Session() capture.Session
	Waveform() ([]int16, error)
	Capacity() int
}

// Extractor computes feature frames over a waveform.
type Extractor interface {
	Frames(samples []int16, hop int) ([]features.Frame, error)
}

// Saver writes a waveform to path.
type Saver interface {
	Save(path string, samples []int16) error
}

// Gate reports whether a waveform is loud enough to be worth classifying.
type Gate interface {
	Open(samples []int16) bool
}

// Recorder receives command, extraction and inference measurements.
type Recorder interface {
	RecordCommand(name string)
	RecordExtraction(frames int, d time.Duration)
	RecordInference(d time.Duration, err error)
}

// Options wires the dispatcher's collaborators. Capture and Extractor are
// required; the rest may be nil.
type Options struct {
	Capture   Capture
	Extractor Extractor
	Hop       int
	Runner    inference.Runner
	Inputs    *inference.InputSet
	// Quantization of extracted frames for "run_model features".
	InputScale     float64
	InputZeroPoint int

	Log       *diag.LogBuffer
	Transport transport.Transport
	Saver     Saver
	Gate      Gate
	Metrics   Recorder
	MaxTokens int
}

type handler func(ctx context.Context, w io.Writer, args []string, line string)

// Dispatcher routes command lines to their handlers. Commands are run one
// at a time whichever surface they arrive on.
type Dispatcher struct {
	mu       sync.Mutex
	opts     Options
	handlers map[string]handler
	help     map[string]string
}

// NewDispatcher validates opts and registers the built-in commands.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Capture == nil || opts.Extractor == nil {
		return nil, fmt.Errorf("command: capture and extractor are required")
	}
	if opts.Hop <= 0 {
		return nil, fmt.Errorf("command: hop must be positive, got %d", opts.Hop)
	}
	if opts.Runner == nil {
		opts.Runner = inference.NoneRunner{}
	}
	if opts.Inputs == nil {
		opts.Inputs = inference.NewInputSet(0)
	}
	if opts.Log == nil {
		opts.Log = diag.NewLogBuffer(1024)
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	d := &Dispatcher{opts: opts}
	d.handlers = map[string]handler{
		"name":      d.name,
		"run_model": d.runModel,
		"extract":   d.extract,
		"i2scap":    d.capture,
		"log":       d.dumpLog,
		"status":    d.status,
		"save":      d.save,
		"help":      d.helpCmd,
	}
	d.help = map[string]string{
		"name":      "print the platform name",
		"run_model": "run_model <label|features>: run the model on a stored input",
		"extract":   "compute log-mel features over the last capture",
		"i2scap":    "i2scap [samples]: start a capture",
		"log":       "print and clear the diagnostic log",
		"status":    "show the current capture session",
		"save":      "save <path>: write the last capture as WAV",
		"help":      "list commands",
	}
	return d, nil
}

// Session returns the current capture session.
func (d *Dispatcher) Session() capture.Session {
	return d.opts.Capture.Session()
}

// Waveform returns a copy of the completed capture. The copy is taken
// between commands, so a concurrent i2scap cannot overwrite it.
func (d *Dispatcher) Waveform() ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	samples, err := d.opts.Capture.Waveform()
	if err != nil {
		return nil, err
	}
	return slices.Clone(samples), nil
}

// Dispatch runs one command line and writes its output to w. Empty lines
// are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, w io.Writer, line string) {
	args := Tokenize(line, d.opts.MaxTokens)
	if len(args) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cmdLog.Debugf("Full command: %s", line)
	h, ok := d.handlers[args[0]]
	if !ok {
		d.opts.Metrics.RecordCommand("unknown")
		printf(w, "Unrecognized command %s, with arguments %s", args[0], line)
		return
	}
	d.opts.Metrics.RecordCommand(args[0])
	h(ctx, w, args, line)
}

func (d *Dispatcher) name(_ context.Context, w io.Writer, _ []string, _ string) {
	printf(w, "%s", PlatformName)
}

func (d *Dispatcher) runModel(ctx context.Context, w io.Writer, args []string, _ string) {
	printf(w, "In run_model. about to run model")

	label := inference.DefaultLabel
	if len(args) > 1 {
		label = args[1]
	}

	var (
		input []byte
		ok    bool
	)
	if label == FeaturesLabel {
		input, ok = d.opts.Inputs.Get(FeaturesLabel)
		if !ok {
			printf(w, "No features extracted yet, run extract first")
			return
		}
	} else {
		var used string
		used, input, ok = d.opts.Inputs.Resolve(label)
		if used != label {
			printf(w, "Unknown input tensor name, defaulting to %s", used)
		}
		if !ok {
			printf(w, "No input tensor %s loaded", used)
			return
		}
	}

	start := time.Now()
	out, err := d.opts.Runner.Run(ctx, input)
	elapsed := time.Since(start)
	d.opts.Metrics.RecordInference(elapsed, err)

	printf(w, "run_model took %s", elapsed)
	if err != nil {
		cmdLog.Warnf("run_model %s: %v", label, err)
		printf(w, "Inference error: %v", err)
		return
	}
	printf(w, "%s", inference.FormatOutput(out))
}

func (d *Dispatcher) extract(_ context.Context, w io.Writer, _ []string, _ string) {
	samples, err := d.opts.Capture.Waveform()
	if err != nil {
		printf(w, "No completed capture to extract from: %v", err)
		return
	}

	start := time.Now()
	frames, err := d.opts.Extractor.Frames(samples, d.opts.Hop)
	elapsed := time.Since(start)
	if err != nil {
		printf(w, "Extraction failed: %v", err)
		return
	}
	d.opts.Metrics.RecordExtraction(len(frames), elapsed)

	printf(w, "compute_lfbe took %s for %d frames", elapsed, len(frames))
	printf(w, "Input: %s", formatInts(samples[:min(len(samples), 32)]))
	printf(w, "Output: %s", formatFloats(frames[0]))

	if size := d.opts.Inputs.Size(); size > 0 && d.opts.InputScale > 0 {
		q := inference.Quantize(frames, d.opts.InputScale, d.opts.InputZeroPoint, size)
		if err := d.opts.Inputs.Put(FeaturesLabel, q); err != nil {
			cmdLog.Warnf("storing features: %v", err)
		}
	}

	if d.opts.Transport != nil {
		id := d.opts.Capture.Session().ID.String()
		if err := d.opts.Transport.Send(transport.NewFrameMessage(id, d.opts.Hop, frames)); err != nil {
			cmdLog.Debugf("publishing frames: %v", err)
		}
	}
}

func (d *Dispatcher) capture(_ context.Context, w io.Writer, args []string, _ string) {
	n := d.opts.Capture.Capacity()
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			printf(w, "Invalid sample count %q", args[1])
			return
		}
		n = v
	}

	err := d.opts.Capture.Start(n)
	switch {
	case err == nil:
		printf(w, "Listening for %d samples ...", n)
	case errors.Is(err, capture.ErrAlreadyInProgress):
		printf(w, "Capture currently in progress. Ignoring request")
	default:
		printf(w, "Capture failed: %v", err)
	}
}

func (d *Dispatcher) dumpLog(_ context.Context, w io.Writer, _ []string, _ string) {
	if err := d.opts.Log.DumpAndClear(w); err != nil {
		cmdLog.Warnf("log dump: %v", err)
	}
}

func (d *Dispatcher) status(_ context.Context, w io.Writer, _ []string, _ string) {
	s := d.opts.Capture.Session()
	printf(w, "state=%s session=%s captured=%d/%d active=%s",
		s.State, s.ID, s.Captured, s.Requested, s.Active)
	if s.TransferStatus != nil {
		printf(w, "transfer error: %v", s.TransferStatus)
	}
	if d.opts.Gate != nil && s.State == capture.Complete {
		if samples, err := d.opts.Capture.Waveform(); err == nil && !d.opts.Gate.Open(samples) {
			printf(w, "capture is below the gate threshold")
		}
	}
}

func (d *Dispatcher) save(_ context.Context, w io.Writer, args []string, _ string) {
	if d.opts.Saver == nil {
		printf(w, "Saving is not configured")
		return
	}
	if len(args) < 2 {
		printf(w, "usage: save <path>")
		return
	}
	samples, err := d.opts.Capture.Waveform()
	if err != nil {
		printf(w, "No completed capture to save: %v", err)
		return
	}
	if err := d.opts.Saver.Save(args[1], samples); err != nil {
		printf(w, "Save failed: %v", err)
		return
	}
	printf(w, "Saved %d samples to %s", len(samples), args[1])
}

func (d *Dispatcher) helpCmd(_ context.Context, w io.Writer, _ []string, _ string) {
	names := make([]string, 0, len(d.help))
	for n := range d.help {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		printf(w, "%-10s %s", n, d.help[n])
	}
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\r\n", args...)
}

func formatInts(v []int16) string {
	var sb strings.Builder
	for _, x := range v {
		fmt.Fprintf(&sb, "%d, ", x)
	}
	return sb.String()
}

func formatFloats(v []float32) string {
	var sb strings.Builder
	for _, x := range v {
		fmt.Fprintf(&sb, "%.3f, ", x)
	}
	return sb.String()
}

type nopRecorder struct{}

func (nopRecorder) RecordCommand(string)                 {}
func (nopRecorder) RecordExtraction(int, time.Duration)  {}
func (nopRecorder) RecordInference(time.Duration, error) {}
