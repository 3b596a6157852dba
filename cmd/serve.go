package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"wakeword/internal/audio"
	"wakeword/internal/capture"
	"wakeword/internal/command"
	"wakeword/internal/config"
	"wakeword/internal/diag"
	"wakeword/internal/features"
	"wakeword/internal/filterbank"
	"wakeword/internal/inference"
	"wakeword/internal/log"
	"wakeword/internal/metrics"
	"wakeword/internal/server"
	"wakeword/internal/transport"
	"wakeword/internal/transport/udp"
	"wakeword/pkg/build"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
)

var appLog = log.Component("Main")

// runServe wires the capture path and the command surfaces and runs until
// ctx is done.
func runServe(ctx context.Context, cfg *config.Config) error {
	fs := afero.NewOsFs()

	// ==================== STARTUP PHASE (Cold Path) ====================

	extractor, err := newExtractor(fs, cfg)
	if err != nil {
		return err
	}

	source, closeSource, err := openSource(ctx, fs, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	ctrl, err := capture.New(source, capture.Config{
		ChunkBytes:  cfg.Capture.ChunkBytes,
		Capacity:    cfg.Capture.WaveformSamples,
		EventBuffer: cfg.Capture.EventBuffer,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	fanout, ws, err := openTransports(cfg)
	if err != nil {
		return err
	}
	defer fanout.Close()

	logBuf := diag.NewLogBuffer(cfg.Diag.LogBufferBytes)

	runner, err := inference.New(cfg.Inference)
	if err != nil {
		return err
	}
	if c, ok := runner.(io.Closer); ok {
		defer c.Close()
	}
	inputs, err := inference.LoadInputs(fs, cfg.Inference.InputDir, cfg.Inference.InputSize)
	if err != nil {
		return err
	}
	if cfg.Inference.WatchInputs {
		if err := inputs.Watch(ctx, fs, cfg.Inference.InputDir); err != nil {
			appLog.Warnf("Inputs will not be reloaded: %v", err)
		}
	}

	dispatcher, err := command.NewDispatcher(command.Options{
		Capture:        ctrl,
		Extractor:      extractor,
		Hop:            cfg.Features.HopLen,
		Runner:         runner,
		Inputs:         inputs,
		InputScale:     cfg.Inference.InputScale,
		InputZeroPoint: cfg.Inference.InputZeroPoint,
		Log:            logBuf,
		Transport:      fanout,
		Saver:          &wavSaver{fs: fs, dir: cfg.Capture.OutputDir, sampleRate: int(cfg.Capture.SampleRate)},
		Gate:           audio.NewGate(cfg.Capture.GateThreshold),
		Metrics:        m,
		MaxTokens:      cfg.Command.MaxTokens,
	})
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	var wg sync.WaitGroup
	goFunc := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	goFunc(func() {
		capture.Forward(ctx, ctrl.Events(),
			diag.NewEventLogger(logBuf, cfg.Diag.LogChunks),
			m,
			transport.NewEventForwarder(fanout),
		)
	})
	goFunc(func() { publishDropped(ctx, ctrl, m) })

	framing := command.Framing{
		Terminator:   cfg.Command.Terminator[0],
		MaxLineBytes: cfg.Command.MaxLineBytes,
	}

	if cfg.Command.Stdin {
		// A blocked stdin read cannot be interrupted, so this goroutine is
		// not waited for.
		go func() {
			if err := dispatcher.Serve(ctx, os.Stdin, os.Stdout, framing); err != nil && ctx.Err() == nil {
				appLog.Warnf("stdin commands: %v", err)
			}
		}()
	}
	if cfg.Command.ListenAddress != "" {
		goFunc(func() {
			if err := dispatcher.ListenAndServe(ctx, cfg.Command.ListenAddress, framing); err != nil {
				appLog.Errorf("command listener: %v", err)
			}
		})
	}

	if cfg.HTTP.Enabled {
		opts := server.Options{
			Address:  cfg.HTTP.Address,
			Commands: dispatcher,
			Framing:  framing,
			Capture:  dispatcher,
			EncodeWAV: func(samples []int16) ([]byte, error) {
				return audio.EncodeWAV(samples, int(cfg.Capture.SampleRate))
			},
			Gatherer: reg,
			Metrics:  m,
			Version:  build.Get().Version,
		}
		if ws != nil {
			opts.WebSocket = ws
		}
		srv, err := server.NewHTTPServer(opts)
		if err != nil {
			return err
		}
		goFunc(func() {
			if err := srv.Start(); err != nil {
				appLog.Errorf("%v", err)
			}
		})
		goFunc(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				appLog.Warnf("HTTP shutdown: %v", err)
			}
		})
	}

	appLog.Infof("%s ready: source=%s, %d-sample waveform in %d-sample chunks. Type 'help%s' for commands.",
		build.Get().Name, cfg.Capture.Source, ctrl.Capacity(), ctrl.ChunkSamples(), cfg.Command.Terminator)

	// Block until termination signal is received
	<-ctx.Done()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	appLog.Infof("Shutting down")
	wg.Wait()
	return nil
}

// newExtractor builds the filter bank, from the configured asset or
// generated, and the extractor over it.
func newExtractor(fs afero.Fs, cfg *config.Config) (*features.Extractor, error) {
	var (
		fb  *filterbank.FilterBank
		err error
	)
	if path := cfg.Features.FilterBankPath; path != "" {
		fb, err = filterbank.Load(fs, path, cfg.Features.BlockLen/2+1)
	} else {
		fb, err = melBank(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("filter bank: %w", err)
	}
	return features.NewExtractor(cfg.Features.BlockLen, fb)
}

func melBank(cfg *config.Config) (*filterbank.FilterBank, error) {
	return filterbank.NewMel(filterbank.MelConfig{
		NumFilters: cfg.Features.NumFilters,
		BlockLen:   cfg.Features.BlockLen,
		SampleRate: cfg.Capture.SampleRate,
		LowerHz:    cfg.Features.LowerHz,
		UpperHz:    cfg.Features.UpperHz,
	})
}

// openSource starts the configured capture source. The returned function
// stops it.
func openSource(ctx context.Context, fs afero.Fs, cfg *config.Config) (capture.Source, func(), error) {
	cp := cfg.Capture
	pace := 0
	if cp.Realtime {
		pace = int(cp.SampleRate)
	}

	switch cp.Source {
	case config.SourcePortAudio:
		if err := audio.Initialize(); err != nil {
			return nil, nil, err
		}
		src, err := audio.NewPortAudioSource(audio.StreamConfig{
			DeviceID:     cp.InputDevice,
			SampleRate:   cp.SampleRate,
			ChunkSamples: cfg.ChunkSamples(),
			LowLatency:   cp.LowLatency,
		})
		if err == nil {
			err = src.Start()
		}
		if err != nil {
			audio.Terminate()
			return nil, nil, err
		}
		appLog.Infof("Capturing from %s at %.0f Hz", src.Device().Name, cp.SampleRate)
		return src, func() {
			if err := src.Close(); err != nil {
				appLog.Warnf("closing stream: %v", err)
			}
			if n := src.Overruns(); n > 0 {
				appLog.Warnf("%d callbacks arrived with no transfer armed", n)
			}
			audio.Terminate()
		}, nil

	case config.SourceWAV:
		if cp.WAVPreload {
			clip, err := audio.ReadWAV(fs, cp.WAVPath)
			if err != nil {
				return nil, nil, err
			}
			if float64(clip.SampleRate) != cp.SampleRate {
				appLog.Warnf("%s is %d Hz, capture expects %.0f Hz", cp.WAVPath, clip.SampleRate, cp.SampleRate)
			}
			src := audio.NewPumpSource(audio.NewLoopReader(clip.Samples), pace)
			src.Start(ctx)
			appLog.Infof("Replaying %s (%d samples)", cp.WAVPath, len(clip.Samples))
			return src, func() { src.Close() }, nil
		}

		r, err := audio.OpenWavReader(fs, cp.WAVPath, true)
		if err != nil {
			return nil, nil, err
		}
		if float64(r.SampleRate()) != cp.SampleRate {
			appLog.Warnf("%s is %d Hz, capture expects %.0f Hz", cp.WAVPath, r.SampleRate(), cp.SampleRate)
		}
		src := audio.NewPumpSource(r, pace)
		src.Start(ctx)
		appLog.Infof("Streaming %s in a loop", cp.WAVPath)
		return src, func() {
			src.Close()
			if err := r.Close(); err != nil {
				appLog.Warnf("closing %s: %v", cp.WAVPath, err)
			}
		}, nil

	case config.SourceTone:
		src := audio.NewPumpSource(&audio.ToneReader{
			Frequency:  cp.ToneFrequency,
			Amplitude:  cp.ToneAmplitude,
			SampleRate: cp.SampleRate,
		}, pace)
		src.Start(ctx)
		appLog.Infof("Generating a %.0f Hz tone", cp.ToneFrequency)
		return src, func() { src.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown capture source %q", cp.Source)
}

// openTransports builds the fan-out of frames and events. The WebSocket
// hub is returned separately for the router.
func openTransports(cfg *config.Config) (transport.Fanout, *transport.WebSocketTransport, error) {
	fanout := transport.Fanout{transport.NewLoggingTransport()}

	var ws *transport.WebSocketTransport
	if cfg.Transport.WebSocketEnabled {
		if !cfg.HTTP.Enabled {
			appLog.Warnf("websocket_enabled needs the HTTP server; ignoring")
		} else {
			ws = transport.NewWebSocketTransport()
			fanout = append(fanout, ws)
		}
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			fanout.Close()
			return nil, nil, err
		}
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			fanout.Close()
			return nil, nil, err
		}
		pub.Start()
		fanout = append(fanout, pub)
	}
	return fanout, ws, nil
}

// publishDropped mirrors the controller's dropped-event count into the
// metrics once a second.
func publishDropped(ctx context.Context, ctrl *capture.Controller, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetEventsDropped(ctrl.Dropped())
		}
	}
}

// wavSaver writes captures below dir unless given an absolute path.
type wavSaver struct {
	fs         afero.Fs
	dir        string
	sampleRate int
}

func (s *wavSaver) Save(path string, samples []int16) error {
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := audio.WriteWAV(s.fs, path, samples, s.sampleRate); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	appLog.Infof("Saved %d samples to %s", len(samples), path)
	return nil
}
