// Package version carries build metadata injected at link time.
//
// Release builds set these via -ldflags, e.g.
//
//	-X github.com/skillswap/skillmatch/internal/version.Version=v1.2.0
package version

// Defaults describe a from-source dev build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full renders version, commit and build date on one line, as shown by
// the --version flag.
func Full() string {
	return Version + " (" + Commit + ") " + Date
}
