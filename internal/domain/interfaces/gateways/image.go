// Package gateways defines the interfaces for binary-image access.
package gateways

import "github.com/ochairo/spyglass/internal/domain/entities"

// ModuleImage is the read-only view of one binary image's metadata. Every
// accessor is best-effort: an image that failed to parse returns the zero
// value of each result and never an error, because a target may contain
// arbitrary non-image bytes at a claimed module base.
type ModuleImage interface {
	// Parsed reports whether the image bytes parsed as a known format.
	Parsed() bool

	// Version returns the four-part file version, zero when unknown.
	Version() entities.Version

	// PEIdentity returns the PE timestamp and SizeOfImage. ok is false for
	// non-PE images and unparsable bytes.
	PEIdentity() (timeStamp, fileSize uint32, ok bool)

	// BuildID returns the ELF or Mach-O build-id, nil when absent.
	BuildID() []byte

	// IsManaged reports whether the image carries managed-runtime metadata.
	IsManaged() bool

	// IsExecutable reports whether the image is a program rather than a
	// shared library.
	IsExecutable() bool

	// ExportAddress returns the virtual address of a named export. A zero
	// export offset means the export is unbound and resolves to ok=false.
	ExportAddress(name string) (uint64, bool)

	// ResourceData walks the hierarchical resource tree by path segments and
	// returns the raw bytes of the first child of the final matched node.
	ResourceData(path ...string) ([]byte, bool)

	// SymbolFile returns the symbol-file reference from the debug directory.
	SymbolFile() (entities.SymbolReference, bool)
}

// LoadedModule is a module mapped inside a target, bound to its image view.
type LoadedModule interface {
	ModuleImage

	// FilePath is the module path as recorded by the target.
	FilePath() string

	// BaseAddress is the module load address in the target address space.
	BaseAddress() uint64
}

// ImageProber opens and probes binary files on the local disk. Detection-time
// probing is best-effort; errors mean "not usable", never abort resolution.
type ImageProber interface {
	// OpenImage opens an on-disk binary for inspection.
	OpenImage(path string) (ModuleImage, error)

	// FileExists reports whether a regular file exists at path.
	FileExists(path string) bool
}
