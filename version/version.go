package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/tigerand/mchown/version.Version=v1.2.3" etc.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

func buildSetting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	if key == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func pick(linked, unset, setting, fallback string) string {
	if linked != unset && linked != "" {
		return linked
	}
	if v := buildSetting(setting); v != "" {
		return v
	}
	return fallback
}

// Get returns the linked-in values, or what the Go toolchain recorded in the
// binary when they were not set.
func Get() Info {
	return Info{
		Version: pick(Version, "dev", "", "development"),
		Commit:  pick(Commit, "unknown", "vcs.revision", "unknown"),
		Date:    pick(Date, "unknown", "vcs.time", "unknown"),
	}
}

// GetFullVersion returns the version with the short commit and build date
// when they are known.
func GetFullVersion() string {
	return Get().String()
}

func (i Info) String() string {
	if i.Commit == "unknown" || len(i.Commit) <= 7 {
		return i.Version
	}
	short := i.Commit[:7]
	if i.Date != "unknown" {
		return fmt.Sprintf("%s (%s, built %s)", i.Version, short, i.Date)
	}
	return fmt.Sprintf("%s (%s)", i.Version, short)
}
