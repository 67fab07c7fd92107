package sim

import "runtime/debug"

// Version is the generator release, overridden at build time with
// -ldflags "-X github.com/radiosim/eventgen/sim.Version=v1.2.3".
var Version = "dev"

// VersionHash returns the VCS revision the binary was built from, or an
// empty string when the build carries no VCS stamp (e.g. under go test).
func VersionHash() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
