// Package buildinfo exposes version metadata stamped in at release build
// time via -ldflags, defaulting to development values otherwise.
package buildinfo

var (
	// Version is the release tag, e.g. "v1.4.0". Set via -ldflags.
	Version = "dev"
	// Commit is the short git SHA the binary was built from.
	Commit = "unknown"
	// BuiltAt is the RFC3339 build timestamp.
	BuiltAt = "unknown"
)

// String renders a one-line identifier suitable for startup logs and
// /status responses.
func String() string {
	return Version + " (" + Commit + ", built " + BuiltAt + ")"
}
