// Package version provides version information for the gpu-index application.
package version

// Version is the current version of the gpu-index application.
const Version = "0.4.0"

// AgentString returns the client identifier used towards external services.
// Format: gpu-index/v{version}
func AgentString() string {
	return "gpu-index/v" + Version
}
