// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = info

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	info = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "testapp", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "testapp", "2025-04-13", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "testapp", "2025-04-13", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "testapp", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("Initialize() expected error, got nil")
				}
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			got := Get()
			if got.Name != tt.buildName {
				t.Errorf("Name = %v, want %v", got.Name, tt.buildName)
			}
			if got.Time != tt.buildTime {
				t.Errorf("Time = %v, want %v", got.Time, tt.buildTime)
			}
			if got.Commit != tt.buildCommit {
				t.Errorf("Commit = %v, want %v", got.Commit, tt.buildCommit)
			}
			if got.Version != tt.buildVer {
				t.Errorf("Version = %v, want %v", got.Version, tt.buildVer)
			}
		})
	}
}

func TestInitializeKeepsDefaults(t *testing.T) {
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	err := Initialize()
	if err == nil {
		t.Fatal("Initialize() expected error for a development build")
	}
	if n := strings.Count(err.Error(), "is required"); n != 4 {
		t.Errorf("expected 4 missing flags reported, got %d: %v", n, err)
	}

	got := Get()
	if got.Name != "wakeword" || got.Commit != "unknown" {
		t.Errorf("Get() = %+v, want defaults", got)
	}
	if got.Description == "" {
		t.Error("Description should always be set")
	}
}

func TestInfoString(t *testing.T) {
	i := Info{Name: "wakeword", Version: "v1.2.3", Commit: "abc", Time: "now"}
	if s := i.String(); s != "wakeword v1.2.3 (commit abc, built now)" {
		t.Errorf("String() = %q", s)
	}
}
