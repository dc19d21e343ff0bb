package config

// Linker-injected build metadata, set at compile time via -ldflags, e.g.:
//
//	GOOS=linux GOARCH=arm64 go build -ldflags "-X binwatch/internal/config.version=1.2.0 \
//	    -X binwatch/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X binwatch/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/binwatch
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
