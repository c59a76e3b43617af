// Package entities defines core domain models and data structures.
package entities

import "runtime"

// Platform identifies the operating system a binary image or target belongs to.
type Platform int

// Supported platforms.
const (
	PlatformUnknown Platform = iota
	PlatformWindows
	PlatformLinux
	PlatformMacOS
)

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case PlatformWindows:
		return "windows"
	case PlatformLinux:
		return "linux"
	case PlatformMacOS:
		return "macos"
	default:
		return "unknown"
	}
}

// Architecture identifies a processor architecture.
type Architecture int

// Supported architectures.
const (
	ArchUnknown Architecture = iota
	ArchX86
	ArchAMD64
	ArchARM
	ArchARM64
)

// String returns the architecture name as used in support-library file names.
func (a Architecture) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchAMD64:
		return "amd64"
	case ArchARM:
		return "arm"
	case ArchARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// PointerSize returns the pointer width in bytes for the architecture.
func (a Architecture) PointerSize() int {
	switch a {
	case ArchAMD64, ArchARM64:
		return 8
	case ArchX86, ArchARM:
		return 4
	default:
		return 0
	}
}

// HostPlatform returns the platform this process is running on.
func HostPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformMacOS
	default:
		return PlatformUnknown
	}
}

// HostArchitecture returns the architecture this process is running on.
func HostArchitecture() Architecture {
	switch runtime.GOARCH {
	case "386":
		return ArchX86
	case "amd64":
		return ArchAMD64
	case "arm":
		return ArchARM
	case "arm64":
		return ArchARM64
	default:
		return ArchUnknown
	}
}
