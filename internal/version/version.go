// Package version carries build identification stamped in at link time:
//
//	go build -ldflags "\
//	  -X github.com/banshee-data/keyfob.report/internal/version.Version=v0.3.0 \
//	  -X github.com/banshee-data/keyfob.report/internal/version.GitSHA=$(git rev-parse --short HEAD) \
//	  -X github.com/banshee-data/keyfob.report/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the stamped identity for startup logs.
func String() string {
	return Version + " (" + GitSHA + ")"
}
