// Package services implements domain business logic and use cases.
package services

import (
	"fmt"
	"strings"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// Well-known runtime module names. These are pure lookup functions over the
// flavor/platform pair; the naming conventions are fixed and must be
// reproduced exactly.
const (
	moduleDesktopWindows = "clr.dll"
	moduleCoreWindows    = "coreclr.dll"
	moduleCoreLinux      = "libcoreclr.so"
	moduleCoreMacOS      = "libcoreclr.dylib"
)

// DetectFlavor matches a module file name against the known runtime module
// names. Matching is case-insensitive with one inherited exception: the Linux
// shared-object name matches case-sensitively. The asymmetry is preserved
// deliberately; see DESIGN.md.
func DetectFlavor(fileName string) (entities.RuntimeFlavor, bool) {
	switch {
	case strings.EqualFold(fileName, moduleDesktopWindows):
		return entities.FlavorDesktop, true
	case strings.EqualFold(fileName, moduleCoreWindows),
		strings.EqualFold(fileName, moduleCoreMacOS):
		return entities.FlavorCore, true
	case fileName == moduleCoreLinux:
		return entities.FlavorCore, true
	default:
		return 0, false
	}
}

// DataAccessFileName returns the short data-access library name for a flavor
// on a platform, or "" when the combination does not exist.
func DataAccessFileName(flavor entities.RuntimeFlavor, platform entities.Platform) string {
	switch flavor {
	case entities.FlavorDesktop:
		if platform == entities.PlatformWindows {
			return "mscordacwks.dll"
		}
	case entities.FlavorCore:
		switch platform {
		case entities.PlatformWindows:
			return "mscordaccore.dll"
		case entities.PlatformLinux:
			return "libmscordaccore.so"
		case entities.PlatformMacOS:
			return "libmscordaccore.dylib"
		}
	}
	return ""
}

// DebugInterfaceFileName returns the short debug-interface library name for a
// flavor on a platform, or "" when the combination does not exist.
func DebugInterfaceFileName(flavor entities.RuntimeFlavor, platform entities.Platform) string {
	switch platform {
	case entities.PlatformWindows:
		return "mscordbi.dll"
	case entities.PlatformLinux:
		if flavor == entities.FlavorCore {
			return "libmscordbi.so"
		}
	case entities.PlatformMacOS:
		if flavor == entities.FlavorCore {
			return "libmscordbi.dylib"
		}
	}
	return ""
}

// longFormDataAccessName renders the versioned cross-architecture name under
// which a host-native copy of the data-access library is published:
// {base}_{hostArch}_{targetArch}_{major}.{minor}.{build}.{revision:2digits}.dll,
// lower-cased, revision zero-padded to two digits.
func longFormDataAccessName(flavor entities.RuntimeFlavor, hostArch, targetArch entities.Architecture, v entities.Version) string {
	base := "mscordaccore"
	if flavor == entities.FlavorDesktop {
		base = "mscordacwks"
	}
	name := fmt.Sprintf("%s_%s_%s_%d.%d.%d.%02d.dll",
		base, hostArch, targetArch, v.Major, v.Minor, v.Build, v.Revision)
	return strings.ToLower(name)
}

// moduleFileName extracts the file-name component of a module path recorded
// by a target, tolerating both path separator conventions regardless of the
// host.
func moduleFileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
