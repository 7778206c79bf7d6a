package config

// Build metadata injected at link time:
//
//	go build -ldflags "-X huddle/internal/config.version=1.2.3 \
//	    -X huddle/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X huddle/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Unset (local) builds fall back to the defaults below.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker-injected values; called once during
// configuration loading to fill Config.Build.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
