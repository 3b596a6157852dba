// SPDX-License-Identifier: MIT

// Package server exposes the command surface, the last capture and the
// metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"wakeword/internal/capture"
	"wakeword/internal/command"
	"wakeword/internal/log"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxCommandBytes bounds the body of POST /command.
const MaxCommandBytes = 4096

var srvLog = log.Component("HTTP")

// CommandServer runs commands read from a byte stream.
type CommandServer interface {
	Serve(ctx context.Context, r io.Reader, w io.Writer, f command.Framing) error
}

// Capture is the read side of the capture controller. Waveform must return
// samples the caller owns; the server encodes them while new captures run.
type Capture interface {
	Session() capture.Session
	Waveform() ([]int16, error)
}

// HTTPRecorder receives per-request measurements.
type HTTPRecorder interface {
	RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64)
}

// Options wires the server. Commands and Capture are required.
type Options struct {
	Address   string
	Commands  CommandServer
	Framing   command.Framing
	Capture   Capture
	EncodeWAV func(samples []int16) ([]byte, error)
	WebSocket http.Handler
	Gatherer  prometheus.Gatherer
	Metrics   HTTPRecorder
	Version   string
}

// HTTPServer is the control server.
type HTTPServer struct {
	opts   Options
	router chi.Router
	server *http.Server
}

func NewHTTPServer(opts Options) (*HTTPServer, error) {
	if opts.Commands == nil || opts.Capture == nil {
		return nil, errors.New("server: commands and capture are required")
	}
	h := &HTTPServer{opts: opts}
	h.router = h.routes()
	h.server = &http.Server{
		Addr:              opts.Address,
		Handler:           h.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h, nil
}

// Handler returns the router, for tests and embedding.
func (h *HTTPServer) Handler() http.Handler { return h.router }

func (h *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Group(func(r chi.Router) {
		r.Use(h.withMetrics)
		r.Get("/health", h.handleHealth)
		r.Post("/command", h.handleCommand)
		r.Get("/session", h.handleSession)
		r.Get("/waveform.wav", h.handleWaveform)
	})

	if h.opts.WebSocket != nil {
		r.Get("/ws", h.opts.WebSocket.ServeHTTP)
	}
	if h.opts.Gatherer != nil {
		// No metrics for the metrics endpoint
		r.Handle("/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (h *HTTPServer) Start() error {
	srvLog.Infof("Listening on %s", h.opts.Address)
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// withMetrics records method, route pattern, status and duration.
func (h *HTTPServer) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		if h.opts.Metrics != nil {
			h.opts.Metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(status), time.Since(start).Seconds())
		}
		if status >= 500 {
			srvLog.Warnf("%s %s -> %d", r.Method, endpoint, status)
		} else {
			srvLog.Debugf("%s %s -> %d", r.Method, endpoint, status)
		}
	})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.opts.Version,
	})
}

// handleCommand runs every command in the body. A body without a
// terminator is a single command.
func (h *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, MaxCommandBytes)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.opts.Commands.Serve(r.Context(), body, w, h.opts.Framing); err != nil {
		srvLog.Warnf("command request: %v", err)
	}
}

type sessionResponse struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Requested      int       `json:"requested"`
	Captured       int       `json:"captured"`
	Active         string    `json:"active"`
	StartedAt      time.Time `json:"started_at"`
	TransferStatus string    `json:"transfer_status,omitempty"`
}

func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	s := h.opts.Capture.Session()
	resp := sessionResponse{
		ID:        s.ID.String(),
		State:     s.State.String(),
		Requested: s.Requested,
		Captured:  s.Captured,
		Active:    s.Active.String(),
		StartedAt: s.StartedAt,
	}
	if s.TransferStatus != nil {
		resp.TransferStatus = s.TransferStatus.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPServer) handleWaveform(w http.ResponseWriter, r *http.Request) {
	if h.opts.EncodeWAV == nil {
		http.Error(w, "waveform export not configured", http.StatusNotImplemented)
		return
	}
	samples, err := h.opts.Capture.Waveform()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	data, err := h.opts.EncodeWAV(samples)
	if err != nil {
		srvLog.Errorf("encoding waveform: %v", err)
		http.Error(w, "failed to encode waveform", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srvLog.Warnf("encoding response: %v", err)
	}
}
