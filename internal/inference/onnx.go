//go:build cgo

package inference

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig describes a single-input, single-output int8 model.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library, "" for the system default
	InputName   string
	OutputName  string
	InputSize   int
	OutputSize  int
}

// ONNXRunner runs a quantized keyword model through ONNX Runtime.
type ONNXRunner struct {
	mu      sync.Mutex
	cfg     ONNXConfig
	session *ort.DynamicAdvancedSession
}

func NewONNXRunner(cfg ONNXConfig) (*ONNXRunner, error) {
	if cfg.InputSize <= 0 || cfg.OutputSize <= 0 {
		return nil, fmt.Errorf("invalid tensor sizes %d/%d", cfg.InputSize, cfg.OutputSize)
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		// Already initialized is fine
		if err.Error() != "the ONNX runtime is already initialized" {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		nil, // use default session options
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", cfg.ModelPath, err)
	}
	infLog.Infof("Loaded ONNX model %s (%d -> %d)", cfg.ModelPath, cfg.InputSize, cfg.OutputSize)

	return &ONNXRunner{cfg: cfg, session: session}, nil
}

func (r *ONNXRunner) Run(ctx context.Context, in []byte) ([]byte, error) {
	if err := checkInput(in, r.cfg.InputSize); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	input := make([]int8, len(in))
	for i, b := range in {
		input[i] = int8(b)
	}
	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return nil, fmt.Errorf("%w: input tensor: %v", ErrInference, err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[int8](ort.NewShape(1, int64(r.cfg.OutputSize)))
	if err != nil {
		return nil, fmt.Errorf("%w: output tensor: %v", ErrInference, err)
	}
	defer outputTensor.Destroy()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, fmt.Errorf("%w: runner closed", ErrInference)
	}
	if err := r.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	data := outputTensor.GetData()
	out := make([]byte, len(data))
	for i, v := range data {
		out[i] = byte(v)
	}
	return out, nil
}

// Close releases the session. The runtime environment stays initialized.
func (r *ONNXRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	return err
}
