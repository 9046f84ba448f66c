// Package version exposes build metadata injected with -ldflags.
package version

import "runtime"

// Overridden at build time:
//
//	-ldflags "-X github.com/premiumeclipse/essencefurro/internal/platform/version.Version=v1.2.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information for the named binary.
func Get(service string) Info {
	return Info{
		Service:   service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// UserAgent is sent by outbound clients such as the bot link dialer.
func UserAgent(service string) string {
	return service + "/" + Version
}
