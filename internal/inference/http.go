package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRunner posts the raw input tensor to a remote model server and reads
// the raw output tensor back.
type HTTPRunner struct {
	endpoint   string
	client     *http.Client
	inputSize  int
	outputSize int
}

func NewHTTPRunner(endpoint string, timeout time.Duration, inputSize, outputSize int) *HTTPRunner {
	return &HTTPRunner{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		inputSize:  inputSize,
		outputSize: outputSize,
	}
}

func (r *HTTPRunner) Run(ctx context.Context, in []byte) ([]byte, error) {
	if err := checkInput(in, r.inputSize); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: model server returned %s", ErrInference, resp.Status)
	}

	// One extra byte so an oversized reply is detected.
	out, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.outputSize)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading reply: %v", ErrInference, err)
	}
	if len(out) != r.outputSize {
		return nil, fmt.Errorf("%w: reply is %d bytes, expected %d", ErrInference, len(out), r.outputSize)
	}
	infLog.Debugf("http run of %d bytes returned %d bytes", len(in), len(out))
	return out, nil
}
