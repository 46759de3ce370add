package version

import (
	"strings"
	"testing"
	"time"
)

func saveAndRestore() func() {
	origVersion, origCommit, origBranch, origBuildTime, origGoVersion :=
		Version, GitCommit, GitBranch, BuildTime, GoVersion
	return func() {
		Version = origVersion
		GitCommit = origCommit
		GitBranch = origBranch
		BuildTime = origBuildTime
		GoVersion = origGoVersion
	}
}

func TestGetVersionInfoDefaults(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, GitBranch, BuildTime, GoVersion = "dev", "", "", "", ""

	info := GetVersionInfo()
	if info.Version != "dev" {
		t.Errorf("expected version 'dev', got %q", info.Version)
	}
	if info.IsRelease {
		t.Error("dev should not be a release")
	}
	if info.BuildDate.IsZero() || info.BuildTime == "" {
		t.Error("build date should fall back to now")
	}
	if info.GoVersion == "" {
		t.Error("expected the toolchain version from build info")
	}
}

func TestGetVersionInfoLdflagsWin(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, GitBranch = "1.2.0", "abc1234", "main"
	BuildTime, GoVersion = "2026-01-15T10:30:00Z", "go1.26.0"

	info := GetVersionInfo()
	if !info.IsRelease {
		t.Error("expected a release build")
	}
	if info.GitCommit != "abc1234" || info.GoVersion != "go1.26.0" {
		t.Errorf("ldflags values must not be replaced, got %+v", info)
	}
	want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	if !info.BuildDate.Equal(want) {
		t.Errorf("expected build date %s, got %s", want, info.BuildDate)
	}
}

func TestInfoShort(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "dev"}, "dev"},
		{Info{Version: "1.0.0", GitCommit: "abc1234"}, "1.0.0-abc1234"},
		{Info{Version: "1.0.0", GitCommit: "abc1234", IsDirty: true}, "1.0.0-abc1234-dirty"},
	}
	for _, tc := range tests {
		if got := tc.info.Short(); got != tc.want {
			t.Errorf("Short() = %q, want %q", got, tc.want)
		}
	}
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.0.0",
		GitCommit: "abc1234",
		GitBranch: "feature-x",
		BuildDate: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	got := info.String()
	if got != "1.0.0-abc1234-feature-x (built 2026-03-01T08:00:00Z)" {
		t.Errorf("unexpected full version %q", got)
	}

	info.GitBranch = "main"
	if strings.Contains(info.String(), "main") {
		t.Errorf("main branch should be omitted, got %q", info.String())
	}
}

func TestShortCommit(t *testing.T) {
	if shortCommit("0123456789abcdef") != "0123456" || shortCommit("abc") != "abc" {
		t.Error("unexpected commit shortening")
	}
}

func TestInfoFields(t *testing.T) {
	f := (&Info{Version: "1.0.0", GoVersion: "go1.26.0"}).Fields()
	if f["version"] != "1.0.0" || f["go_version"] != "go1.26.0" {
		t.Errorf("unexpected fields %v", f)
	}
}
