package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelWarn)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN]  warn 3") {
		t.Errorf("missing warning:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("missing error:\n%s", out)
	}
}

func TestComponentPrefix(t *testing.T) {
	buf := captureOutput(t, LevelDebug)

	Component("Capture").Infof("session %s started", "abc")
	Component("Capture").Debugf("chunk %d", 7)

	out := buf.String()
	if !strings.Contains(out, "[INFO]  Capture: session abc started") {
		t.Errorf("missing component info line:\n%s", out)
	}
	if !strings.Contains(out, "[DEBUG] Capture: chunk 7") {
		t.Errorf("missing component debug line:\n%s", out)
	}
}

func TestEnabled(t *testing.T) {
	captureOutput(t, LevelInfo)

	if Enabled(LevelDebug) {
		t.Error("Debug enabled at INFO")
	}
	if !Enabled(LevelError) {
		t.Error("Error disabled at INFO")
	}
}
