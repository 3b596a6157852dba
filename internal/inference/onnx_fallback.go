//go:build !cgo

package inference

import (
	"context"
	"fmt"
)

// ONNXConfig describes a single-input, single-output int8 model.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	InputSize   int
	OutputSize  int
}

// ONNXRunner is unavailable without cgo.
type ONNXRunner struct{}

func NewONNXRunner(cfg ONNXConfig) (*ONNXRunner, error) {
	return nil, fmt.Errorf("%w: the onnx backend needs a cgo build", ErrInference)
}

func (r *ONNXRunner) Run(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: the onnx backend needs a cgo build", ErrInference)
}

func (r *ONNXRunner) Close() error { return nil }
