package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wakeword/internal/capture"
	"wakeword/internal/command"
	"wakeword/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoCommands struct{}

func (echoCommands) Serve(_ context.Context, r io.Reader, w io.Writer, _ command.Framing) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "ran "+string(body)+"\r\n")
	return err
}

type fakeCapture struct {
	session capture.Session
	samples []int16
}

func (f *fakeCapture) Session() capture.Session { return f.session }

func (f *fakeCapture) Waveform() ([]int16, error) {
	if f.session.State != capture.Complete {
		return nil, capture.ErrNotReady
	}
	return f.samples, nil
}

func newTestServer(t *testing.T, c *fakeCapture, m *metrics.Metrics, reg *prometheus.Registry) *HTTPServer {
	t.Helper()
	opts := Options{
		Address:  ":0",
		Commands: echoCommands{},
		Framing:  command.DefaultFraming(),
		Capture:  c,
		EncodeWAV: func(samples []int16) ([]byte, error) {
			if len(samples) == 0 {
				return nil, errors.New("empty")
			}
			return []byte("RIFF"), nil
		},
		Version: "v0.0.0-test",
	}
	if m != nil {
		opts.Metrics = m
		opts.Gatherer = reg
	}
	h, err := NewHTTPServer(opts)
	require.NoError(t, err)
	return h
}

func do(h *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestNewHTTPServerValidation(t *testing.T) {
	_, err := NewHTTPServer(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeCapture{}, nil, nil)
	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v0.0.0-test", body["version"])
}

func TestCommand(t *testing.T) {
	h := newTestServer(t, &fakeCapture{}, nil, nil)
	rec := do(h, http.MethodPost, "/command", "name%")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ran name%\r\n", rec.Body.String())

	rec = do(h, http.MethodGet, "/command", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSession(t *testing.T) {
	id := uuid.New()
	h := newTestServer(t, &fakeCapture{session: capture.Session{
		ID:             id,
		State:          capture.Complete,
		Requested:      1024,
		Captured:       512,
		Active:         capture.BufferB,
		TransferStatus: errors.New("busy"),
	}}, nil, nil)

	rec := do(h, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id.String(), got.ID)
	assert.Equal(t, "complete", got.State)
	assert.Equal(t, 512, got.Captured)
	assert.Equal(t, "B", got.Active)
	assert.Equal(t, "busy", got.TransferStatus)
}

func TestWaveform(t *testing.T) {
	c := &fakeCapture{}
	h := newTestServer(t, c, nil, nil)

	rec := do(h, http.MethodGet, "/waveform.wav", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	c.session.State = capture.Complete
	c.samples = []int16{1, 2, 3}
	rec = do(h, http.MethodGet, "/waveform.wav", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFF", rec.Body.String())

	c.samples = nil
	rec = do(h, http.MethodGet, "/waveform.wav", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	h := newTestServer(t, &fakeCapture{}, m, reg)

	do(h, http.MethodGet, "/health", "")
	do(h, http.MethodGet, "/health", "")
	do(h, http.MethodGet, "/waveform.wav", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/waveform.wav", "409")))

	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kws_http_requests_total")
}

func TestWebSocketRouteOptional(t *testing.T) {
	h := newTestServer(t, &fakeCapture{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/ws", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/metrics", "").Code)
}
