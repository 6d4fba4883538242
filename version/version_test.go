package version

import (
	"runtime/debug"
	"testing"
)

func withBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		readBuildInfo = orig
		Version, Commit, Date = origVersion, origCommit, origDate
	})
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return info, info != nil
	}
}

func TestGet_LinkedValuesWin(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.0.1"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffff"}},
	})
	Version, Commit, Date = "v1.2.3", "abcdef0123456", "2026-01-01"

	got := Get()
	want := Info{Version: "v1.2.3", Commit: "abcdef0123456", Date: "2026-01-01"}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if s := got.String(); s != "v1.2.3 (abcdef0, built 2026-01-01)" {
		t.Errorf("String() = %q", s)
	}
}

func TestGet_BuildInfoFallback(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-02-03T04:05:06Z"},
		},
	})

	got := Get()
	if got.Version != "v0.4.0" || got.Commit != "0123456789abcdef" || got.Date != "2026-02-03T04:05:06Z" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestGet_Development(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

	if got := GetFullVersion(); got != "development" {
		t.Errorf("GetFullVersion() = %q, want development", got)
	}
}

func TestString_NoDate(t *testing.T) {
	i := Info{Version: "v1", Commit: "1234567890", Date: "unknown"}
	if got := i.String(); got != "v1 (1234567)" {
		t.Errorf("String() = %q", got)
	}
}
