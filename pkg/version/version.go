// Package version reports what this server binary is, for the health
// endpoint and startup logging.
package version

import (
	"fmt"
	"runtime/debug"
)

// Info describes the running build.
type Info struct {
	// Commit is the short VCS revision, or "dev" outside a git build
	// (e.g. `go test`).
	Commit string
	// Dirty is true when the binary was built from a modified tree.
	Dirty bool
	// GoVersion is the toolchain that produced the binary.
	GoVersion string
}

// Build returns the build info embedded by the Go toolchain. No -ldflags
// required.
func Build() Info {
	info := Info{Commit: "dev"}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) >= 8 {
				info.Commit = s.Value[:8]
			} else if s.Value != "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// String renders the build as "council/<commit>", with a "+dirty" suffix
// for modified-tree builds.
func (i Info) String() string {
	if i.Dirty {
		return fmt.Sprintf("council/%s+dirty", i.Commit)
	}
	return "council/" + i.Commit
}

// Full returns the version string for the health endpoint and logs.
func Full() string {
	return Build().String()
}
