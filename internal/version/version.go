package version

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/studiowebux/loadgen/internal/version.Version=..."
var Version = "0.1.0"

// UserAgent returns the User-Agent header sent with every load test request
func UserAgent() string {
	return "loadgen/" + Version
}
