// SPDX-License-Identifier: MIT
package metrics

import (
	"errors"
	"testing"
	"time"

	"wakeword/internal/capture"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	start := time.Now()

	m.HandleEvent(capture.Event{Kind: capture.CaptureStarted, At: start, Requested: 1024})
	m.HandleEvent(capture.Event{Kind: capture.ChunkCompleted, Captured: 512})
	m.HandleEvent(capture.Event{Kind: capture.ChunkCompleted, Captured: 1024})
	m.HandleEvent(capture.Event{Kind: capture.TransferError, Err: errors.New("busy")})
	m.HandleEvent(capture.Event{Kind: capture.CaptureComplete, At: start.Add(64 * time.Millisecond), Captured: 1024})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapturesStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransferErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapturesCompleted))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CaptureDuration))
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordExtraction(31, 2*time.Millisecond)
	m.RecordInference(time.Millisecond, nil)
	m.RecordInference(time.Millisecond, errors.New("boom"))
	m.RecordCommand("extract")
	m.RecordCommand("extract")
	m.RecordHTTPRequest("POST", "/command", "200", 0.01)
	m.SetEventsDropped(7)

	assert.Equal(t, 31.0, testutil.ToFloat64(m.FramesExtracted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InferenceRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("extract")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/command", "200")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.EventsDropped))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors; no duplicate registration panic.
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
