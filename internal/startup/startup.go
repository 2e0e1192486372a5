// Package startup carries build information and environment-driven
// defaults shared by the CLI commands.
package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"dataset-coach/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String formats build info for the version command.
func (b BuildInfo) String() string {
	return fmt.Sprintf("dataset-coach %s (commit %s, built %s, %s %s/%s)",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.OS, b.Arch)
}

// DefaultDataDir returns the per-user data directory, ~/.dataset-coach.
// Falls back to a relative directory when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		logging.Warn("Cannot determine home directory, using working directory: %v", err)
		return ".dataset-coach"
	}
	return filepath.Join(home, ".dataset-coach")
}

// DefaultCachePath returns the default cache file location.
func DefaultCachePath() string {
	return filepath.Join(DefaultDataDir(), "cache.json")
}

// DefaultManifestPath returns the default manifest database location.
func DefaultManifestPath() string {
	return filepath.Join(DefaultDataDir(), "manifest.db")
}

// GetEnv returns the environment value for key, or defaultValue when unset
// or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool parses a boolean environment variable, returning defaultValue
// when unset or unparsable.
func GetEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn("Invalid boolean for %s: %q, using default %v", key, v, defaultValue)
		return defaultValue
	}
	return parsed
}
