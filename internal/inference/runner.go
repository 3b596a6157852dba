// SPDX-License-Identifier: MIT

// Package inference is the classifier collaborator: a Runner takes one int8
// input tensor and returns the int8 class scores.
package inference

import (
	"context"
	"errors"
	"fmt"

	"wakeword/internal/config"
	"wakeword/internal/log"
)

// ErrInference is wrapped by every failure a Runner reports.
var ErrInference = errors.New("inference failed")

var infLog = log.Component("Inference")

// Runner runs the model once.
type Runner interface {
	Run(ctx context.Context, in []byte) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, in []byte) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, in []byte) ([]byte, error) { return f(ctx, in) }

// NoneRunner is used when no backend is configured. Every call fails.
type NoneRunner struct{}

func (NoneRunner) Run(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: no inference backend configured", ErrInference)
}

// New builds the runner selected by cfg.Backend.
func New(cfg config.InferenceConfig) (Runner, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return NoneRunner{}, nil
	case config.BackendHTTP:
		return NewHTTPRunner(cfg.Endpoint, cfg.Timeout, cfg.InputSize, cfg.OutputSize), nil
	case config.BackendONNX:
		r, err := NewONNXRunner(ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			InputName:   cfg.InputName,
			OutputName:  cfg.OutputName,
			InputSize:   cfg.InputSize,
			OutputSize:  cfg.OutputSize,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Backend)
	}
}

// checkInput validates the input tensor size shared by all backends.
func checkInput(in []byte, size int) error {
	if len(in) != size {
		return fmt.Errorf("%w: input is %d bytes, model expects %d", ErrInference, len(in), size)
	}
	return nil
}
