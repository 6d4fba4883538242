// Package version reports the mchown build.
//
// Version, commit and date are injected at link time:
//
//	-ldflags "-X github.com/tigerand/mchown/version.Version=v1.0.0 -X github.com/tigerand/mchown/version.Commit=abc1234 -X github.com/tigerand/mchown/version.Date=2026-01-01T00:00:00Z"
//
// Unset values fall back to the module version and VCS settings recorded by
// the Go toolchain (debug.ReadBuildInfo).
package version
