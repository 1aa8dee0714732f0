// Package version reports the taskgraph release and the build it came from.
package version

import (
	_ "embed"
	"runtime"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var release string

// Commit can be set at link time with -ldflags "-X .../version.Commit=abc123".
// When empty, the VCS revision recorded by the Go toolchain is used.
var Commit string

// Get returns the release number from the VERSION file.
func Get() string {
	return strings.TrimSpace(release)
}

// Revision returns the short commit the binary was built from, or "unknown".
func Revision() string {
	if Commit != "" {
		return short(Commit)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "unknown"
	}
	if dirty {
		return short(rev) + "-dirty"
	}
	return short(rev)
}

// String is the one-line form printed by "taskgraph version".
func String() string {
	return Get() + " (" + Revision() + ", " + runtime.Version() + ")"
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
