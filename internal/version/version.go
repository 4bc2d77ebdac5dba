// Package version reports the build identity of the botrelay binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/botrelay/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/botrelay/internal/version.Commit=abc123
//	  -X github.com/soyeahso/botrelay/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the resolved build identity.
type Build struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

// Current returns the ldflags values, falling back to the VCS stamps the
// toolchain embeds when the binary was built without them.
func Current() Build {
	b := Build{Version: Version, Commit: Commit, Date: Date}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	return fromBuildInfo(b, info)
}

func fromBuildInfo(b Build, info *debug.BuildInfo) Build {
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// String formats the build for `botrelay version`.
func (b Build) String() string {
	commit := short(b.Commit)
	if b.Dirty {
		commit += "+dirty"
	}
	return fmt.Sprintf("botrelay %s (commit: %s, built: %s, %s/%s)",
		b.Version, commit, b.Date, runtime.GOOS, runtime.GOARCH)
}

// Info returns the formatted current build.
func Info() string {
	return Current().String()
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
