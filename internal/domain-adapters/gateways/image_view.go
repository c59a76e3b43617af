// Package gateways provides adapter implementations for binary-image access.
package gateways

import (
	"bytes"
	"io"
	"os"
	"sync/atomic"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
	igateways "github.com/ochairo/spyglass/internal/domain/interfaces/gateways"
)

// parsedImage is the terminal result of one parse attempt. All fields nil
// means the bytes are not a recognizable image and never will be.
type parsedImage struct {
	pe    *peImage
	elf   *elfImage
	macho *machoImage
}

func (p *parsedImage) ok() bool {
	return p.pe != nil || p.elf != nil || p.macho != nil
}

// ImageView is a lazy, memoized view of one binary module's bytes. The bytes
// are parsed at most once, on first access; a parse failure is permanent and
// turns every accessor into its zero-value default. Concurrent first access
// may parse redundantly, but only one result is retained and all candidate
// results are equal, so the race is benign.
type ImageView struct {
	r         io.ReaderAt
	size      int64
	imageBase uint64

	parsed atomic.Pointer[parsedImage]
}

// NewImageView wraps a byte source holding one module image. imageBase is the
// module's load address and is folded into export addresses.
func NewImageView(r io.ReaderAt, size int64, imageBase uint64) *ImageView {
	return &ImageView{r: r, size: size, imageBase: imageBase}
}

// NewTargetImage builds a view over a module mapped inside a target.
func NewTargetImage(target interfaces.DataTarget, base, size uint64) *ImageView {
	return NewImageView(targetReader{target: target, base: base}, int64(size), base)
}

func (v *ImageView) image() *parsedImage {
	if p := v.parsed.Load(); p != nil {
		return p
	}
	p := v.parse()
	v.parsed.CompareAndSwap(nil, p)
	return v.parsed.Load()
}

// parse attempts the virtual (in-memory, relocated) layout first and falls
// back to the raw file layout. A target may contain arbitrary non-image bytes
// at a claimed module base, so every structural error is swallowed.
func (v *ImageView) parse() (result *parsedImage) {
	result = &parsedImage{}
	defer func() {
		// Corrupt images must never abort discovery.
		if r := recover(); r != nil {
			result = &parsedImage{}
		}
	}()
	for _, virtual := range []bool{true, false} {
		if pe, err := parsePE(v.r, v.size, v.imageBase, virtual); err == nil {
			return &parsedImage{pe: pe}
		}
		if e, err := parseELF(v.r, v.imageBase, virtual); err == nil {
			return &parsedImage{elf: e}
		}
		if m, err := parseMachO(v.r, v.imageBase, virtual); err == nil {
			return &parsedImage{macho: m}
		}
	}
	return result
}

// Parsed reports whether the bytes parsed as a known image format.
func (v *ImageView) Parsed() bool {
	return v.image().ok()
}

// Version returns the four-part file version from the version resource, zero
// when the image has none or did not parse.
func (v *ImageView) Version() entities.Version {
	if p := v.image(); p.pe != nil {
		return p.pe.fileVersion()
	}
	return entities.Version{}
}

// PEIdentity returns the PE link timestamp and SizeOfImage.
func (v *ImageView) PEIdentity() (timeStamp, fileSize uint32, ok bool) {
	if p := v.image(); p.pe != nil {
		return p.pe.timeStamp, p.pe.sizeOfImage, true
	}
	return 0, 0, false
}

// BuildID returns the ELF build-id or Mach-O UUID, nil when absent.
func (v *ImageView) BuildID() []byte {
	p := v.image()
	switch {
	case p.elf != nil:
		return p.elf.buildID
	case p.macho != nil:
		return p.macho.uuid
	default:
		return nil
	}
}

// IsManaged reports whether the image carries managed-runtime metadata.
func (v *ImageView) IsManaged() bool {
	if p := v.image(); p.pe != nil {
		return p.pe.isManaged()
	}
	return false
}

// IsExecutable reports whether the image is a program rather than a library.
func (v *ImageView) IsExecutable() bool {
	p := v.image()
	switch {
	case p.pe != nil:
		return p.pe.isExecutable()
	case p.elf != nil:
		return p.elf.exec
	case p.macho != nil:
		return p.macho.exec
	default:
		return false
	}
}

// ExportAddress resolves a named export to a virtual address in the target.
// A zero export offset means the export is unbound and reports ok=false.
func (v *ImageView) ExportAddress(name string) (uint64, bool) {
	p := v.image()
	switch {
	case p.pe != nil:
		return p.pe.exportAddress(name)
	case p.elf != nil:
		return p.elf.exportAddress(name)
	case p.macho != nil:
		return p.macho.exportAddress(name)
	default:
		return 0, false
	}
}

// ResourceData walks the embedded resource tree by path segments and returns
// the raw bytes of the first child of the final matched node.
func (v *ImageView) ResourceData(path ...string) ([]byte, bool) {
	if p := v.image(); p.pe != nil {
		return p.pe.resourceData(path)
	}
	return nil, false
}

// SymbolFile returns the symbol-file reference from the debug directory.
func (v *ImageView) SymbolFile() (entities.SymbolReference, bool) {
	if p := v.image(); p.pe != nil {
		return p.pe.symbolFile()
	}
	return entities.SymbolReference{}, false
}

// Platform reports which operating system convention the image follows.
func (v *ImageView) Platform() entities.Platform {
	p := v.image()
	switch {
	case p.pe != nil:
		return entities.PlatformWindows
	case p.elf != nil:
		return entities.PlatformLinux
	case p.macho != nil:
		return entities.PlatformMacOS
	default:
		return entities.PlatformUnknown
	}
}

// Architecture reports the processor architecture the image was built for.
func (v *ImageView) Architecture() entities.Architecture {
	p := v.image()
	switch {
	case p.pe != nil:
		return p.pe.architecture()
	case p.elf != nil:
		return p.elf.architecture()
	case p.macho != nil:
		return p.macho.arch
	default:
		return entities.ArchUnknown
	}
}

// targetReader adapts a data target's memory to io.ReaderAt, rebased to one
// module.
type targetReader struct {
	target interfaces.DataTarget
	base   uint64
}

func (r targetReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.EOF
	}
	n, err := r.target.ReadMemory(r.base+uint64(off), p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// FileProber implements image probing over the local file system.
type FileProber struct{}

// NewFileProber creates a new file-system image prober
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewFileProber() *FileProber {
	return &FileProber{}
}

// OpenImage reads a binary file and wraps it in a lazy image view.
func (*FileProber) OpenImage(path string) (igateways.ModuleImage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: candidate paths come from the resolver
	if err != nil {
		return nil, err
	}
	return NewImageView(bytes.NewReader(data), int64(len(data)), 0), nil
}

// FileExists reports whether a regular file exists at path.
func (*FileProber) FileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
