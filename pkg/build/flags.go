// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata stamped into the binary with -ldflags:
//
//	go build -ldflags "-X wakeword/pkg/build.buildName=wakeword \
//	  -X wakeword/pkg/build.buildVersion=0.1.0 ..."
//
// Development builds carry no flags; they fall back to the module version
// recorded by the Go toolchain.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Info is the build metadata of the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders a one-line version banner.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

const description = "Streaming keyword-spotting front end and test platform"

var info = defaults()

func defaults() Info {
	return Info{
		Name:        "wakeword",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}
}

// Initialize copies the ldflags values into the build info. Missing values
// keep their defaults and are reported together in the returned error, so
// callers may treat the error as a warning.
func Initialize() error {
	next := defaults()
	var errs []error

	if buildName == "" {
		errs = append(errs, errors.New("BuildName is required"))
	} else {
		next.Name = buildName
	}
	if buildTime == "" {
		errs = append(errs, errors.New("BuildTime is required"))
	} else {
		next.Time = buildTime
	}
	if buildCommit == "" {
		errs = append(errs, errors.New("BuildCommit is required"))
	} else {
		next.Commit = buildCommit
	}
	if buildVersion == "" {
		errs = append(errs, errors.New("BuildVersion is required"))
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
			next.Version = bi.Main.Version
		}
	} else {
		next.Version = buildVersion
	}

	info = next
	return errors.Join(errs...)
}

// Get returns the current build information.
func Get() Info {
	return info
}
