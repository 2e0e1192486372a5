package startup

import (
	"strings"
	"testing"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("DC_TEST_VALUE", "set")
	if got := GetEnv("DC_TEST_VALUE", "default"); got != "set" {
		t.Errorf("GetEnv = %q, want set", got)
	}
	if got := GetEnv("DC_TEST_UNSET", "default"); got != "default" {
		t.Errorf("GetEnv = %q, want default", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("DC_TEST_BOOL", "true")
	if !GetEnvBool("DC_TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("DC_TEST_BOOL", "garbage")
	if !GetEnvBool("DC_TEST_BOOL", true) {
		t.Error("invalid value should fall back to default")
	}
	if GetEnvBool("DC_TEST_BOOL_UNSET", false) {
		t.Error("unset should use default")
	}
}

func TestBuildInfoString(t *testing.T) {
	info := GetBuildInfo()
	s := info.String()
	if !strings.Contains(s, "dataset-coach") || !strings.Contains(s, info.Version) {
		t.Errorf("unexpected build info string: %s", s)
	}
}

func TestDefaultPathsShareDataDir(t *testing.T) {
	dir := DefaultDataDir()
	if dir == "" {
		t.Fatal("DefaultDataDir returned empty string")
	}
	if !strings.HasPrefix(DefaultCachePath(), dir) {
		t.Errorf("cache path %q not under %q", DefaultCachePath(), dir)
	}
	if !strings.HasPrefix(DefaultManifestPath(), dir) {
		t.Errorf("manifest path %q not under %q", DefaultManifestPath(), dir)
	}
}
