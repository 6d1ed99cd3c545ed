// Package platform maps the host platform onto the names the extension update service expects.
package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// OS names understood by the update service.
const (
	OSLinux   = "linux"
	OSMac     = "mac"
	OSWindows = "win"
	OSCrOS    = "cros"
	OSOpenBSD = "openbsd"
)

// Architecture names understood by the update service.
const (
	ArchX64   = "x64"
	ArchX86   = "x86"
	ArchARM   = "arm"
	ArchARM64 = "arm64"
)

// Platform is the host description sent with every update request.
type Platform struct {
	OS       string `yaml:"os" json:"os"`
	Arch     string `yaml:"arch" json:"arch"`
	NaClArch string `yaml:"nacl_arch" json:"nacl_arch"`
}

// CurrentPlatform returns the platform derived from the Go runtime alone.
func CurrentPlatform() Platform {
	return New(runtime.GOOS, runtime.GOARCH)
}

// New builds a Platform from Go-style or kernel-style OS and architecture names.
func New(goos, arch string) Platform {
	a := NormalizeArch(arch)
	return Platform{
		OS:       NormalizeOS(goos),
		Arch:     a,
		NaClArch: NaClArch(a),
	}
}

// Detect returns the host platform. The architecture is taken from the running kernel
// when gopsutil can read it, so a 32-bit binary on a 64-bit host still reports x64.
func Detect(ctx context.Context) (Platform, error) {
	kernelArch, err := host.KernelArchWithContext(ctx)
	if err != nil || kernelArch == "" {
		if ctx.Err() != nil {
			return Platform{}, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		// Fall back to the architecture the binary was built for
		return CurrentPlatform(), nil
	}
	return New(runtime.GOOS, kernelArch), nil
}

// String returns a string representation of the platform.
func (p Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}

// OSArch returns the combined os_arch value.
func (p Platform) OSArch() string {
	switch p.Arch {
	case ArchX64:
		return "x86_64"
	case ArchX86:
		return "x86"
	case ArchARM64:
		return "arm64"
	case ArchARM:
		return "arm"
	default:
		return p.Arch
	}
}

// NormalizeOS maps OS names onto the update service vocabulary.
func NormalizeOS(os string) string {
	switch strings.ToLower(os) {
	case "darwin", "macos", "mac":
		return OSMac
	case "windows", "win":
		return OSWindows
	case "linux":
		return OSLinux
	case "cros", "chromeos":
		return OSCrOS
	case "openbsd":
		return OSOpenBSD
	default:
		// Unknown systems are reported as Linux, the closest desktop build
		return OSLinux
	}
}

// NormalizeArch maps architecture names onto the update service vocabulary.
func NormalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "amd64", "x86_64", "x64":
		return ArchX64
	case "386", "i386", "i686", "x86":
		return ArchX86
	case "arm64", "aarch64", "armv8", "armv8l":
		return ArchARM64
	case "arm", "armv6l", "armv7l":
		return ArchARM
	default:
		return ArchX64
	}
}

// NaClArch returns the Native Client architecture for a normalized architecture.
func NaClArch(arch string) string {
	switch arch {
	case ArchX86:
		return "x86-32"
	case ArchARM, ArchARM64:
		return "arm"
	default:
		return "x86-64"
	}
}
