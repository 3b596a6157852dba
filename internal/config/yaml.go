// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wakeword/internal/log"
	"wakeword/pkg/bitint"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Hardware and processing limits.
const (
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MaxBlockLen   = 8192   // Largest FFT block (power of 2)
)

// Capture source names.
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
	SourceTone      = "tone"
)

// Inference backend names.
const (
	BackendNone = "none"
	BackendONNX = "onnx"
	BackendHTTP = "http"
)

var cfgLog = log.Component("Config")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Capture   CaptureConfig   `yaml:"capture"`
	Features  FeaturesConfig  `yaml:"features"`
	Inference InferenceConfig `yaml:"inference"`
	Command   CommandConfig   `yaml:"command"`
	Diag      DiagConfig      `yaml:"diag"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// CaptureConfig selects and sizes the capture path.
type CaptureConfig struct {
	Source          string  `yaml:"source"`           // "portaudio", "wav" or "tone".
	InputDevice     int     `yaml:"input_device"`     // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`      // Sample rate in Hz.
	LowLatency      bool    `yaml:"low_latency"`      // Request low latency settings from PortAudio.
	ChunkBytes      int     `yaml:"chunk_bytes"`      // Bytes per transfer (two per sample).
	WaveformSamples int     `yaml:"waveform_samples"` // Waveform store capacity and default capture length.
	EventBuffer     int     `yaml:"event_buffer"`     // Capture event channel depth.
	WAVPath         string  `yaml:"wav_path"`         // Clip replayed by the "wav" source.
	WAVPreload      bool    `yaml:"wav_preload"`      // Decode the whole clip up front instead of streaming it.
	ToneFrequency   float64 `yaml:"tone_frequency"`   // Frequency of the "tone" source (Hz).
	ToneAmplitude   float64 `yaml:"tone_amplitude"`   // Amplitude of the "tone" source (0-1).
	Realtime        bool    `yaml:"realtime"`         // Pace replay sources at the sample rate.
	GateThreshold   float64 `yaml:"gate_threshold"`   // Peak level below which a capture is reported silent (0-1).
	OutputDir       string  `yaml:"output_dir"`       // Directory for saved captures.
}

// FeaturesConfig describes the log-mel front end.
type FeaturesConfig struct {
	BlockLen       int     `yaml:"block_len"`       // FFT length in samples (power of 2).
	HopLen         int     `yaml:"hop_len"`         // Samples between successive frames.
	NumFilters     int     `yaml:"num_filters"`     // Mel bands per frame.
	LowerHz        float64 `yaml:"lower_hz"`        // Lower edge of the first band.
	UpperHz        float64 `yaml:"upper_hz"`        // Upper edge of the last band.
	FilterBankPath string  `yaml:"filterbank_path"` // Optional YAML asset overriding the generated bank.
}

// InferenceConfig configures the classifier collaborator.
type InferenceConfig struct {
	Backend        string        `yaml:"backend"`          // "none", "onnx" or "http".
	ModelPath      string        `yaml:"model_path"`       // ONNX model file.
	LibraryPath    string        `yaml:"library_path"`     // onnxruntime shared library.
	InputName      string        `yaml:"input_name"`       // ONNX input tensor name.
	OutputName     string        `yaml:"output_name"`      // ONNX output tensor name.
	Endpoint       string        `yaml:"endpoint"`         // HTTP backend URL.
	Timeout        time.Duration `yaml:"timeout"`          // Per-call timeout.
	InputDir       string        `yaml:"input_dir"`        // Directory of <label>.bin test inputs.
	WatchInputs    bool          `yaml:"watch_inputs"`     // Reload inputs when files in input_dir change.
	InputSize      int           `yaml:"input_size"`       // Input tensor size in bytes.
	OutputSize     int           `yaml:"output_size"`      // Output tensor size in bytes.
	InputScale     float64       `yaml:"input_scale"`      // Quantisation scale of feature values.
	InputZeroPoint int           `yaml:"input_zero_point"` // Quantisation zero point.
}

// CommandConfig configures the text command surface.
type CommandConfig struct {
	Terminator    string `yaml:"terminator"`     // Single byte ending a command, besides newlines.
	MaxLineBytes  int    `yaml:"max_line_bytes"` // Longer commands are truncated.
	MaxTokens     int    `yaml:"max_tokens"`     // Tokens beyond this are ignored.
	Stdin         bool   `yaml:"stdin"`          // Read commands from standard input.
	ListenAddress string `yaml:"listen_address"` // TCP address for a command socket ("" disables).
}

// DiagConfig sizes the diagnostic log.
type DiagConfig struct {
	LogBufferBytes int  `yaml:"log_buffer_bytes"` // Wraparound log capacity.
	LogChunks      bool `yaml:"log_chunks"`       // Record every chunk completion, not just session events.
}

// TransportConfig holds settings related to sending processed data over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending feature frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames and events on /ws.
}

// HTTPConfig configures the control server.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the built-in configuration: 16 kHz capture in 512-sample
// chunks into a 16384-sample waveform, and a 40-band log-mel front end over
// 1024-point blocks.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Capture: CaptureConfig{
			Source:          SourcePortAudio,
			InputDevice:     MinDeviceID,
			SampleRate:      16000,
			LowLatency:      false,
			ChunkBytes:      1024,
			WaveformSamples: 32 * 512,
			EventBuffer:     256,
			ToneFrequency:   1000,
			ToneAmplitude:   0.3,
			Realtime:        true,
			GateThreshold:   0.001,
			OutputDir:       "./captures",
		},
		Features: FeaturesConfig{
			BlockLen:   1024,
			HopLen:     512,
			NumFilters: 40,
			LowerHz:    20,
			UpperHz:    4000,
		},
		Inference: InferenceConfig{
			Backend:        BackendNone,
			InputName:      "input",
			OutputName:     "output",
			Timeout:        2 * time.Second,
			InputDir:       "./inputs",
			InputSize:      30 * 40,
			OutputSize:     3,
			InputScale:     1.0 / 255.0,
			InputZeroPoint: -128,
		},
		Command: CommandConfig{
			Terminator:   "%",
			MaxLineBytes: 80,
			MaxTokens:    8,
			Stdin:        true,
		},
		Diag: DiagConfig{
			LogBufferBytes: 1024,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // Default ~30Hz.
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: ":8080",
		},
	}
}

// LoadConfig loads configuration from a YAML file on disk, see Load.
func LoadConfig(path string) (*Config, error) {
	return Load(afero.NewOsFs(), path)
}

// Load reads configuration from a YAML file specified by path. If path is
// empty, it looks for "config.yaml" and falls back to the defaults when there
// is none. Environment overrides are applied last, then the result is
// validated.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if ok, _ := afero.Exists(fs, "config.yaml"); ok {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Level returns the effective log level. Debug forces LevelDebug.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// ChunkSamples returns the samples per capture transfer.
func (c *Config) ChunkSamples() int { return c.Capture.ChunkBytes / 2 }

// Validate checks the configuration for values the pipeline cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel)
	}

	// Capture
	cp := c.Capture
	switch cp.Source {
	case SourcePortAudio:
		if cp.InputDevice < MinDeviceID {
			add("capture.input_device must be >= %d, got %d", MinDeviceID, cp.InputDevice)
		}
	case SourceWAV:
		if cp.WAVPath == "" {
			add("capture.wav_path must be set for the wav source")
		}
	case SourceTone:
		if cp.ToneFrequency <= 0 || cp.ToneFrequency >= cp.SampleRate/2 {
			add("capture.tone_frequency %.1f must be within (0, %.1f) Hz", cp.ToneFrequency, cp.SampleRate/2)
		}
		if cp.ToneAmplitude < 0 || cp.ToneAmplitude > 1 {
			add("capture.tone_amplitude must be within [0, 1], got %.3f", cp.ToneAmplitude)
		}
	default:
		add("capture.source %q is not one of %s, %s, %s", cp.Source, SourcePortAudio, SourceWAV, SourceTone)
	}
	if cp.SampleRate < MinSampleRate || cp.SampleRate > MaxSampleRate {
		add("capture.sample_rate must be within [%d, %d] Hz, got %.0f", MinSampleRate, MaxSampleRate, cp.SampleRate)
	}
	if cp.ChunkBytes <= 0 || cp.ChunkBytes%2 != 0 {
		add("capture.chunk_bytes must be a positive even number, got %d", cp.ChunkBytes)
	} else if cp.WaveformSamples < cp.ChunkBytes/2 {
		add("capture.waveform_samples (%d) must hold at least one chunk (%d samples)", cp.WaveformSamples, cp.ChunkBytes/2)
	}
	if cp.EventBuffer < 0 {
		add("capture.event_buffer must not be negative, got %d", cp.EventBuffer)
	}
	if cp.GateThreshold < 0 || cp.GateThreshold > 1 {
		add("capture.gate_threshold must be within [0, 1], got %.3f", cp.GateThreshold)
	}

	// Features
	ft := c.Features
	if !bitint.IsPowerOfTwo(ft.BlockLen) || ft.BlockLen < 2 || ft.BlockLen > MaxBlockLen {
		add("features.block_len must be a power of 2 up to %d, got %d (nearest is %d)",
			MaxBlockLen, ft.BlockLen, min(bitint.NextPowerOfTwo(max(ft.BlockLen, 2)), MaxBlockLen))
	}
	if ft.HopLen <= 0 {
		add("features.hop_len must be positive, got %d", ft.HopLen)
	}
	if ft.NumFilters <= 0 {
		add("features.num_filters must be positive, got %d", ft.NumFilters)
	}
	if ft.LowerHz < 0 || ft.UpperHz <= ft.LowerHz || ft.UpperHz > cp.SampleRate/2 {
		add("features band [%.1f, %.1f] Hz must be increasing and within Nyquist (%.1f Hz)",
			ft.LowerHz, ft.UpperHz, cp.SampleRate/2)
	}

	// Inference
	inf := c.Inference
	switch inf.Backend {
	case BackendNone:
	case BackendONNX:
		if inf.ModelPath == "" {
			add("inference.model_path must be set for the onnx backend")
		}
	case BackendHTTP:
		if !strings.HasPrefix(inf.Endpoint, "http://") && !strings.HasPrefix(inf.Endpoint, "https://") {
			add("inference.endpoint %q must be an http(s) URL", inf.Endpoint)
		}
	default:
		add("inference.backend %q is not one of %s, %s, %s", inf.Backend, BackendNone, BackendONNX, BackendHTTP)
	}
	if inf.Backend != BackendNone {
		if inf.InputSize <= 0 || inf.OutputSize <= 0 {
			add("inference.input_size and output_size must be positive")
		}
		if inf.InputScale <= 0 {
			add("inference.input_scale must be positive, got %g", inf.InputScale)
		}
		if inf.InputZeroPoint < -128 || inf.InputZeroPoint > 127 {
			add("inference.input_zero_point must fit in int8, got %d", inf.InputZeroPoint)
		}
	}

	// Command
	if len(c.Command.Terminator) != 1 {
		add("command.terminator must be a single byte, got %q", c.Command.Terminator)
	}
	if c.Command.MaxLineBytes <= 0 {
		add("command.max_line_bytes must be positive, got %d", c.Command.MaxLineBytes)
	}
	if c.Command.MaxTokens <= 0 {
		add("command.max_tokens must be positive, got %d", c.Command.MaxTokens)
	}

	if c.Diag.LogBufferBytes <= 0 {
		add("diag.log_buffer_bytes must be positive, got %d", c.Diag.LogBufferBytes)
	}

	// Transport
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			add("transport.udp_target_address must be set when UDP is enabled")
		} else if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			add("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			add("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	if c.HTTP.Enabled && c.HTTP.Address == "" {
		add("http.address must be set when the HTTP server is enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			cfgLog.Infof("Overriding debug from env: %v", bVal)
		} else {
			cfgLog.Warnf("Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		cfgLog.Infof("Overriding log_level from env: %s", val)
	}

	// ENV_CAPTURE_SOURCE
	if val, ok := os.LookupEnv("ENV_CAPTURE_SOURCE"); ok {
		cfg.Capture.Source = val
		cfgLog.Infof("Overriding capture.source from env: %s", val)
	}
	// ENV_INFERENCE_BACKEND
	if val, ok := os.LookupEnv("ENV_INFERENCE_BACKEND"); ok {
		cfg.Inference.Backend = val
		cfgLog.Infof("Overriding inference.backend from env: %s", val)
	}
	// ENV_HTTP_ADDRESS
	if val, ok := os.LookupEnv("ENV_HTTP_ADDRESS"); ok {
		cfg.HTTP.Address = val
		cfgLog.Infof("Overriding http.address from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			cfgLog.Infof("Overriding transport.udp_enabled from env: %v", bVal)
		} else {
			cfgLog.Warnf("Ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		cfgLog.Infof("Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			cfgLog.Infof("Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			cfgLog.Warnf("Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
}
