// Package uameta builds CDP UserAgentMetadata consistent with the overridden
// user agent. Sites cross-check the UA string against client hints, so the
// brand list and platform must agree with what the header claims.
package uameta

import (
	"runtime"
	"strings"

	"github.com/chromedp/cdproto/emulation"
)

// Build creates a SetUserAgentOverride action with full UserAgentMetadata.
// chromeVersion should be the full build (e.g. "144.0.7559.133");
// acceptLanguage becomes both the CDP accept-language and, by extension,
// navigator.languages. Returns nil when userAgent is empty.
func Build(userAgent, chromeVersion, acceptLanguage string) *emulation.SetUserAgentOverrideParams {
	if userAgent == "" {
		return nil
	}
	if acceptLanguage == "" {
		acceptLanguage = "en-US,en"
	}

	major := chromeVersion
	if i := strings.Index(chromeVersion, "."); i > 0 {
		major = chromeVersion[:i]
	}

	platform, arch := detectPlatform()

	return emulation.SetUserAgentOverride(userAgent).
		WithAcceptLanguage(acceptLanguage).
		WithPlatform(platform).
		WithUserAgentMetadata(&emulation.UserAgentMetadata{
			Platform:        platformName(),
			PlatformVersion: platformVersion(),
			Architecture:    arch,
			Bitness:         "64",
			Mobile:          false,
			Brands: []*emulation.UserAgentBrandVersion{
				{Brand: "Not(A:Brand", Version: "99"},
				{Brand: "Google Chrome", Version: major},
				{Brand: "Chromium", Version: major},
			},
			FullVersionList: []*emulation.UserAgentBrandVersion{
				{Brand: "Not(A:Brand", Version: "99.0.0.0"},
				{Brand: "Google Chrome", Version: chromeVersion},
				{Brand: "Chromium", Version: chromeVersion},
			},
		})
}

func detectPlatform() (jsNavigatorPlatform, architecture string) {
	switch runtime.GOARCH {
	case "arm64":
		architecture = "arm"
	default:
		architecture = "x86"
	}

	switch runtime.GOOS {
	case "darwin":
		return "MacIntel", architecture
	case "windows":
		return "Win32", architecture
	default:
		return "Linux x86_64", architecture
	}
}

func platformName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	default:
		return "Linux"
	}
}

func platformVersion() string {
	switch runtime.GOOS {
	case "darwin":
		return "14.0.0"
	case "windows":
		return "15.0.0"
	default:
		return "6.5.0"
	}
}
