package version

import (
	"time"

	kwilVersion "github.com/trufnetwork/kwil-db/version"
)

// These variables can be overridden at build time with ldflags.
var (
	AppVersion   string // -X github.com/clustermesh/authority/cmd/version.AppVersion=...
	AppCommit    string // -X github.com/clustermesh/authority/cmd/version.AppCommit=...
	AppBuildTime string // -X github.com/clustermesh/authority/cmd/version.AppBuildTime=...
)

// getVersion returns the distribution version if set, otherwise falls back to
// the engine version.
func getVersion() string {
	if AppVersion != "" {
		return AppVersion
	}
	return kwilVersion.KwilVersion
}

// getCommit returns the short commit hash, preferring the build-time override.
func getCommit() string {
	var commit string
	if AppCommit != "" {
		commit = AppCommit
	} else if kwilVersion.Build != nil {
		commit = kwilVersion.Build.Revision
	}

	const shortHashLength = 9
	if len(commit) > shortHashLength {
		return commit[:shortHashLength]
	}
	return commit
}

func getBuildTime() time.Time {
	if AppBuildTime != "" {
		if t, err := time.Parse(time.RFC3339, AppBuildTime); err == nil {
			return t
		}
	}
	if kwilVersion.Build != nil {
		return kwilVersion.Build.RevTime
	}
	return time.Time{}
}

func getBuildTimeDisplay() string {
	buildTime := getBuildTime()
	if buildTime.IsZero() {
		return "unknown"
	}
	return buildTime.Format(time.RFC3339)
}
