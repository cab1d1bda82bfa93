package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the release this tree builds
	Version = "0.3.0"

	// ReportFormatVersion is the version of the workbook and CSV bundle layout
	ReportFormatVersion = "v1"

	// APIVersion is the version of the HTTP API and websocket messages
	APIVersion = "v1"
)

// Set with -ldflags "-X tickpulse/pkg/contracts.GitCommit=..."
var (
	BuildTime  = "unknown"
	GitCommit  = "unknown"
	Prerelease = ""
)

// VersionInfo is what `tickpulse version --json` and GET /api/version print
type VersionInfo struct {
	Version      string `json:"version"`
	Prerelease   bool   `json:"prerelease"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	ReportFormat string `json:"report_format"`
	APIVersion   string `json:"api_version"`
}

// IsPrerelease reports whether the build carries a pre-release tag
func IsPrerelease() bool {
	return Prerelease != ""
}

// FullVersion is Version with the pre-release tag appended, e.g. 0.3.0-rc.1
func FullVersion() string {
	if IsPrerelease() {
		return Version + "-" + Prerelease
	}
	return Version
}

func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      FullVersion(),
		Prerelease:   IsPrerelease(),
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		ReportFormat: ReportFormatVersion,
		APIVersion:   APIVersion,
	}
}

// GetVersionString returns "tickpulse v<version>"
func GetVersionString() string {
	return fmt.Sprintf("tickpulse v%s", FullVersion())
}

// GetFullVersionString adds build details to GetVersionString
func GetFullVersionString() string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s (built: %s, commit: %s, go: %s, os: %s/%s)",
		GetVersionString(), info.BuildTime, info.GitCommit, info.GoVersion, info.OS, info.Architecture)
}
