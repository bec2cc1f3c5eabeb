package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Version, Commit and Date are set at build time via -ldflags. Commit and
// Date fall back to the VCS stamp the toolchain embeds.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var stampOnce sync.Once

func stamp() {
	stampOnce.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if Commit == "unknown" && s.Value != "" {
					Commit = s.Value
					if len(Commit) > 12 {
						Commit = Commit[:12]
					}
				}
			case "vcs.time":
				if Date == "unknown" && s.Value != "" {
					Date = s.Value
				}
			}
		}
	})
}

// Short returns a compact build identifier for the window title and logs.
func Short() string {
	stamp()
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// String is the line kerninfo prints.
func String() string {
	stamp()
	return fmt.Sprintf("exokern %s (commit %s, built %s)", Short(), Commit, Date)
}
