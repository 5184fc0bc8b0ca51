// Package platform detects the OS and architecture names used in runtime
// metadata queries.
package platform

import (
	"context"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// Info holds the normalized platform identifiers sent to the metadata
// endpoint.
type Info struct {
	OS   string
	Arch string
}

// Detect returns the current platform's normalized identifiers.
//
// OS is one of linux, alpine, macos or windows; architectures map to the
// runtime vendors' naming (x64, aarch64). On Linux the distribution is
// inspected with gopsutil to distinguish musl-based systems; detection
// failures fall back to plain linux rather than erroring, so a metadata
// query is always possible.
func Detect(ctx context.Context) (Info, error) {
	info := Info{
		OS:   normalizeOS(runtime.GOOS),
		Arch: normalizeArch(runtime.GOARCH),
	}

	if runtime.GOOS == "linux" {
		platform, family, _, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Info{}, ctx.Err()
			}
			return info, nil
		}
		if isMuslBased(platform, family) {
			info.OS = "alpine"
		}
	}

	return info, nil
}

func normalizeOS(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	default:
		return goos
	}
}

func normalizeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

func isMuslBased(platform, family string) bool {
	return strings.EqualFold(platform, "alpine") || strings.EqualFold(family, "alpine")
}
