// Package version holds build information injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/bdobrica/OrthoBot/common/version.Version=v1.2.0"
package version

var (
	// Version is the semantic version (set via ldflags)
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash (set via ldflags)
	GitCommit = "unknown"

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = "unknown"
)

// Info returns a formatted version string
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}

// UserAgent is sent to upstream LLM and embedding providers.
func UserAgent() string {
	return "orthobot/" + Version
}
