package gateways

import (
	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// RuntimeModuleInfo binds one module mapped inside a target to its lazily
// parsed image view. It adds no behavior beyond delegation, but its caching
// contract matters: the underlying view parses at most once, and a module
// whose bytes never parse stays permanently opaque without failing any
// caller.
type RuntimeModuleInfo struct {
	path string
	base uint64
	img  *ImageView
}

// NewRuntimeModuleInfo creates the facade for one target module
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewRuntimeModuleInfo(target interfaces.DataTarget, mod interfaces.TargetModule) *RuntimeModuleInfo {
	return &RuntimeModuleInfo{
		path: mod.Path,
		base: mod.Base,
		img:  NewTargetImage(target, mod.Base, mod.Size),
	}
}

// FilePath is the module path as recorded by the target.
func (m *RuntimeModuleInfo) FilePath() string { return m.path }

// BaseAddress is the module load address in the target address space.
func (m *RuntimeModuleInfo) BaseAddress() uint64 { return m.base }

// Image exposes the underlying lazy view.
func (m *RuntimeModuleInfo) Image() *ImageView { return m.img }

// Parsed reports whether the module bytes parsed as a known image format.
func (m *RuntimeModuleInfo) Parsed() bool { return m.img.Parsed() }

// Version delegates to the image view.
func (m *RuntimeModuleInfo) Version() entities.Version { return m.img.Version() }

// PEIdentity delegates to the image view.
func (m *RuntimeModuleInfo) PEIdentity() (uint32, uint32, bool) { return m.img.PEIdentity() }

// BuildID delegates to the image view.
func (m *RuntimeModuleInfo) BuildID() []byte { return m.img.BuildID() }

// IsManaged delegates to the image view.
func (m *RuntimeModuleInfo) IsManaged() bool { return m.img.IsManaged() }

// IsExecutable delegates to the image view.
func (m *RuntimeModuleInfo) IsExecutable() bool { return m.img.IsExecutable() }

// ExportAddress delegates to the image view.
func (m *RuntimeModuleInfo) ExportAddress(name string) (uint64, bool) {
	return m.img.ExportAddress(name)
}

// ResourceData delegates to the image view.
func (m *RuntimeModuleInfo) ResourceData(path ...string) ([]byte, bool) {
	return m.img.ResourceData(path...)
}

// SymbolFile delegates to the image view.
func (m *RuntimeModuleInfo) SymbolFile() (entities.SymbolReference, bool) {
	return m.img.SymbolFile()
}
