package interfaces

import "github.com/ochairo/spyglass/internal/domain/entities"

// DataTarget abstracts the process or crash snapshot being inspected. It
// exposes the target's platform, architecture, pointer width, and raw memory.
// Implementations live in external adapters (core files, live processes);
// the domain only consumes this contract.
type DataTarget interface {
	// TargetPlatform reports the operating system of the target.
	TargetPlatform() entities.Platform

	// TargetArchitecture reports the processor architecture of the target.
	TargetArchitecture() entities.Architecture

	// PointerSize reports the target pointer width in bytes.
	PointerSize() int

	// ReadMemory reads len(buf) bytes from the target address space starting
	// at addr. It returns the number of bytes read; short reads are allowed
	// and unreadable ranges surface as an error, never a panic.
	ReadMemory(addr uint64, buf []byte) (int, error)
}

// TargetModule describes one module mapped into a target address space.
type TargetModule struct {
	Path string
	Base uint64
	Size uint64
}

// ModuleEnumerator is implemented by targets that can list their mapped
// modules. Module enumeration is an external concern: the resolver consumes
// modules, it does not discover them.
type ModuleEnumerator interface {
	Modules() ([]TargetModule, error)
}
