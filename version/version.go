// Package version holds build-time version metadata, set via -ldflags at
// release build time. Left at defaults for local/dev builds.
package version

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = "unknown"
)
