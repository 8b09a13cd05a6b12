// Package version derives the build identity from the binary's embedded VCS
// metadata, with an -ldflags override for container builds where .git is
// unavailable.
package version

import "runtime/debug"

// AppName is used in version strings and user agents.
const AppName = "homescriptd"

// gitCommitOverride is set via
// -ldflags "-X …/pkg/version.gitCommitOverride=<sha>".
var gitCommitOverride string

var (
	// GitCommit is the short revision hash, or "dev" outside a git build
	// (e.g. `go test`).
	GitCommit = shortRev()

	// Dirty marks a build made from a tree with uncommitted changes.
	Dirty = vcsSetting("vcs.modified") == "true"
)

func shortRev() string {
	rev := gitCommitOverride
	if rev == "" {
		rev = vcsSetting("vcs.revision")
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return rev
}

func vcsSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// Full is the identity string for logs and user agents,
// e.g. "homescriptd/a3f8c2d1".
func Full() string {
	if Dirty {
		return AppName + "/" + GitCommit + "+dirty"
	}
	return AppName + "/" + GitCommit
}
