package storagehttp

import (
	"runtime"
	"strings"
)

// Version is the current storage-http release
const Version = "1.0.0"

// Build metadata, injected with -ldflags "-X"
var (
	GitCommit string
	BuildTime string
)

// VersionInfo returns the release plus whatever build metadata was injected
func VersionInfo() map[string]string {
	info := map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	}
	if GitCommit != "" {
		info["commit"] = GitCommit
	}
	if BuildTime != "" {
		info["buildTime"] = BuildTime
	}
	return info
}

// VersionString formats the version for CLI output, e.g. "1.0.0 (abc123, 2026-10-14)"
func VersionString() string {
	var meta []string
	if GitCommit != "" {
		meta = append(meta, GitCommit)
	}
	if BuildTime != "" {
		meta = append(meta, BuildTime)
	}
	if len(meta) == 0 {
		return Version
	}
	return Version + " (" + strings.Join(meta, ", ") + ")"
}
