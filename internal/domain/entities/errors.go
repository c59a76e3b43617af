package entities

import "fmt"

// NotFoundError reports that no file exists at a resolved or explicit path,
// or that no candidate could be materialized at all in automatic mode.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return "no usable data-access library was found for any candidate"
	}
	return fmt.Sprintf("file not found: %s", e.Path)
}

// VersionMismatchError reports an explicit-path construction where the
// candidate file's version differs from the runtime's version.
type VersionMismatchError struct {
	Path     string
	Expected Version
	Found    Version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch for %s: runtime is %s, file is %s",
		e.Path, e.Expected, e.Found)
}

// PointerSizeMismatchError reports that the host and target pointer widths
// differ. This is fatal: no support library built for the host can inspect
// the target.
type PointerSizeMismatchError struct {
	HostSize   int
	TargetSize int
}

func (e *PointerSizeMismatchError) Error() string {
	return fmt.Sprintf("host pointer size %d does not match target pointer size %d",
		e.HostSize, e.TargetSize)
}

// PlatformNotSupportedError reports that no candidate could even be formed
// for the host's platform and architecture. It is distinct from NotFoundError:
// candidates were structurally impossible, not merely missing from disk.
type PlatformNotSupportedError struct {
	Platform     Platform
	Architecture Architecture
}

func (e *PlatformNotSupportedError) Error() string {
	return fmt.Sprintf("no support-library candidate exists for host %s/%s",
		e.Platform, e.Architecture)
}

// ConstructionError wraps a failure to open a resolved support library and
// obtain the native inspection interface from it.
type ConstructionError struct {
	Path string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct inspection session from %s: %v", e.Path, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
