// Package buildinfo carries the version stamped into titan binaries.
package buildinfo

import "runtime/debug"

// Set at build time via -ldflags "-X titan/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the resolved build identity.
type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	Modified  bool
}

// Read merges the ldflags values with whatever the Go toolchain embedded.
func Read() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	return info
}

func (i Info) String() string {
	s := "titan " + i.Version + " (" + shortCommit(i.Commit)
	if i.Modified {
		s += "+dirty"
	}
	s += ", " + i.Date
	if i.GoVersion != "" {
		s += ", " + i.GoVersion
	}
	return s + ")"
}

// Short returns a compact build identifier for UI/logging.
func Short() string {
	i := Read()
	if i.Version != "" && i.Version != "dev" {
		return i.Version
	}
	if i.Commit != "" && i.Commit != "unknown" {
		return shortCommit(i.Commit)
	}
	return "dev"
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
