package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" && gv != "unknown" {
		GoVersion = gv
	}
}

// FormatStartupMessage is the one-line banner logged when serve starts.
func FormatStartupMessage() string {
	return fmt.Sprintf("botsweep %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
