// Package version provides the kubegate version strings.
package version

import (
	_ "embed"
	"runtime"
	"strings"
)

// buildNumber can be overridden at compile time by using:
//
//	go run -ldflags "-X github.com/kubegate/kubegate/version.buildNumber=abc" . --version
//
// On CI, the binaries are always built with the buildNumber variable set.

//go:embed VERSION
var baseVersion string
var buildNumber string

func Version() string {
	return strings.TrimSpace(baseVersion)
}

func BuildNumber() string {
	if buildNumber == "" {
		return "x"
	}
	return buildNumber
}

// FullVersion is the version and build number, as shown by `kubegate --version`.
func FullVersion() string {
	return Version() + ", build " + BuildNumber()
}

func UserAgent() string {
	return "kubegate/" + Version() + "." + BuildNumber() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
