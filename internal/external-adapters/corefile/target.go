// Package corefile exposes an ELF core dump as an inspectable data target.
package corefile

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// See /usr/include/linux/elf.h. NT_FILE carries the mapped-file table
// written by the kernel at dump time.
const elfNTFile = 0x46494c45

type loadSegment struct {
	vaddr  uint64
	memsz  uint64
	filesz uint64
	prog   *elf.Prog
}

// mappedFile is one NT_FILE entry: a contiguous mapping backed by a path.
type mappedFile struct {
	start   uint64
	end     uint64
	fileOff uint64
	path    string
}

// Target reads memory and module mappings out of an ELF core dump. It
// implements the DataTarget and ModuleEnumerator contracts for crash-time
// inspection.
type Target struct {
	f        *elf.File
	arch     entities.Architecture
	ptrSize  int
	segments []loadSegment
	files    []mappedFile
}

// Open opens an ELF core dump at path
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func Open(path string) (*Target, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open core file: %w", err)
	}
	t, err := newTarget(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return t, nil
}

func newTarget(f *elf.File) (*Target, error) {
	if f.Type != elf.ET_CORE {
		return nil, fmt.Errorf("not a core file: ELF type %v", f.Type)
	}

	t := &Target{f: f}
	switch f.Machine {
	case elf.EM_X86_64:
		t.arch = entities.ArchAMD64
	case elf.EM_386:
		t.arch = entities.ArchX86
	case elf.EM_AARCH64:
		t.arch = entities.ArchARM64
	case elf.EM_ARM:
		t.arch = entities.ArchARM
	default:
		return nil, fmt.Errorf("unsupported core architecture %v", f.Machine)
	}
	t.ptrSize = 4
	if f.Class == elf.ELFCLASS64 {
		t.ptrSize = 8
	}

	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_LOAD:
			t.segments = append(t.segments, loadSegment{
				vaddr:  p.Vaddr,
				memsz:  p.Memsz,
				filesz: p.Filesz,
				prog:   p,
			})
		case elf.PT_NOTE:
			if err := t.readNotes(p); err != nil {
				return nil, err
			}
		}
	}
	sort.Slice(t.segments, func(i, j int) bool {
		return t.segments[i].vaddr < t.segments[j].vaddr
	})
	return t, nil
}

// Close releases the underlying core file.
func (t *Target) Close() error {
	return t.f.Close()
}

// TargetPlatform reports the operating system of the target.
func (t *Target) TargetPlatform() entities.Platform {
	return entities.PlatformLinux
}

// TargetArchitecture reports the processor architecture of the target.
func (t *Target) TargetArchitecture() entities.Architecture {
	return t.arch
}

// PointerSize reports the target pointer width in bytes.
func (t *Target) PointerSize() int {
	return t.ptrSize
}

// ReadMemory reads from the dumped address space. Ranges the kernel did not
// write to the core (file size shorter than memory size) read as zeros, the
// same view the process would have had for untouched pages.
func (t *Target) ReadMemory(addr uint64, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		seg := t.segmentFor(addr + uint64(total))
		if seg == nil {
			if total > 0 {
				return total, nil
			}
			return 0, fmt.Errorf("address %#x not mapped in core", addr)
		}
		off := addr + uint64(total) - seg.vaddr
		chunk := seg.memsz - off
		if remaining := uint64(len(buf) - total); chunk > remaining {
			chunk = remaining
		}
		dst := buf[total : total+int(chunk)]

		if off >= seg.filesz {
			for i := range dst {
				dst[i] = 0
			}
		} else {
			inFile := seg.filesz - off
			readLen := chunk
			if readLen > inFile {
				readLen = inFile
			}
			n, err := seg.prog.ReadAt(dst[:readLen], int64(off))
			if err != nil && err != io.EOF {
				return total, fmt.Errorf("failed to read core segment: %w", err)
			}
			for i := n; i < len(dst); i++ {
				dst[i] = 0
			}
		}
		total += int(chunk)
	}
	return total, nil
}

func (t *Target) segmentFor(addr uint64) *loadSegment {
	i := sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].vaddr+t.segments[i].memsz > addr
	})
	if i < len(t.segments) && addr >= t.segments[i].vaddr {
		return &t.segments[i]
	}
	return nil
}

// Modules lists the files mapped into the dumped process, coalescing the
// per-page NT_FILE entries into one module per path. The mapping whose file
// offset is zero anchors the module base.
func (t *Target) Modules() ([]interfaces.TargetModule, error) {
	if len(t.files) == 0 {
		return nil, fmt.Errorf("core file carries no NT_FILE note")
	}

	type span struct {
		base uint64
		end  uint64
	}
	byPath := make(map[string]*span)
	var order []string
	for _, m := range t.files {
		s, ok := byPath[m.path]
		if !ok {
			s = &span{base: m.start, end: m.end}
			byPath[m.path] = s
			order = append(order, m.path)
			continue
		}
		if m.fileOff == 0 || m.start < s.base {
			s.base = m.start
		}
		if m.end > s.end {
			s.end = m.end
		}
	}

	modules := make([]interfaces.TargetModule, 0, len(order))
	for _, path := range order {
		s := byPath[path]
		modules = append(modules, interfaces.TargetModule{
			Path: path,
			Base: s.base,
			Size: s.end - s.base,
		})
	}
	return modules, nil
}

func (t *Target) readNotes(p *elf.Prog) error {
	r := p.Open()
	for {
		var hdr struct {
			Namesz uint32
			Descsz uint32
			Ntype  uint32
		}
		err := binary.Read(r, t.f.ByteOrder, &hdr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading PT_NOTE at offset %v: %w", p.Off, err)
		}

		// Name and descriptor are padded to 4-byte alignment.
		nameLen := (hdr.Namesz + 3) &^ 3
		descLen := (hdr.Descsz + 3) &^ 3
		if _, err := io.CopyN(io.Discard, r, int64(nameLen)); err != nil {
			return fmt.Errorf("error skipping note name: %w", err)
		}

		if hdr.Ntype != elfNTFile {
			if _, err := io.CopyN(io.Discard, r, int64(descLen)); err != nil {
				return fmt.Errorf("error skipping note descriptor: %w", err)
			}
			continue
		}

		desc := make([]byte, descLen)
		if _, err := io.ReadFull(r, desc); err != nil {
			return fmt.Errorf("error reading NT_FILE note: %w", err)
		}
		if err := t.parseFileNote(desc[:hdr.Descsz]); err != nil {
			return err
		}
	}
	return nil
}

// parseFileNote decodes the NT_FILE descriptor: a count and page size,
// count (start, end, file offset) triples, then NUL-terminated paths.
func (t *Target) parseFileNote(desc []byte) error {
	word := func(b []byte) uint64 {
		if t.ptrSize == 8 {
			return t.f.ByteOrder.Uint64(b)
		}
		return uint64(t.f.ByteOrder.Uint32(b))
	}

	ws := uint64(t.ptrSize)
	if uint64(len(desc)) < 2*ws {
		return fmt.Errorf("truncated NT_FILE note")
	}
	count := word(desc)
	pageSize := word(desc[ws:])

	// Divide rather than multiply: count is file-controlled and count*3*ws
	// can wrap uint64.
	if count > (uint64(len(desc))-2*ws)/(3*ws) {
		return fmt.Errorf("truncated NT_FILE mapping table")
	}
	tableEnd := 2*ws + count*3*ws

	names := desc[tableEnd:]
	for i := uint64(0); i < count; i++ {
		entry := desc[2*ws+i*3*ws:]
		m := mappedFile{
			start:   word(entry),
			end:     word(entry[ws:]),
			fileOff: word(entry[2*ws:]) * pageSize,
		}
		end := 0
		for end < len(names) && names[end] != 0 {
			end++
		}
		if end == len(names) {
			return fmt.Errorf("truncated NT_FILE name table")
		}
		m.path = string(names[:end])
		names = names[end+1:]
		t.files = append(t.files, m)
	}
	return nil
}
