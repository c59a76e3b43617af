package gateways

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// ELF constants for the virtual-layout parser. Only little-endian images are
// handled; every supported target architecture is little-endian.
const (
	elfNoteGNUBuildID = 3

	elfDTNull   = 0
	elfDTHash   = 4
	elfDTStrtab = 5
	elfDTSymtab = 6
	elfDTStrsz  = 10
	elfDTSyment = 11

	elfMaxSymbols = 1 << 17
)

// elfImage is one parsed ELF module: its build-id and dynamic symbol table,
// with symbol values normalized to module-relative offsets.
type elfImage struct {
	imageBase uint64
	machine   elf.Machine
	class     elf.Class
	exec      bool
	buildID   []byte
	symbols   map[string]uint64
}

func parseELF(r io.ReaderAt, imageBase uint64, virtual bool) (*elfImage, error) {
	if virtual {
		return parseELFVirtual(r, imageBase)
	}
	return parseELFRaw(r, imageBase)
}

// parseELFRaw reads a raw on-disk ELF through debug/elf.
func parseELFRaw(r io.ReaderAt, imageBase uint64) (*elfImage, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	img := &elfImage{
		imageBase: imageBase,
		machine:   f.Machine,
		class:     f.Class,
		exec:      f.Type == elf.ET_EXEC,
	}
	if s := f.Section(".note.gnu.build-id"); s != nil {
		if data, derr := s.Data(); derr == nil {
			img.buildID = parseELFNotes(data)
		}
	}
	if img.buildID == nil {
		for _, prog := range f.Progs {
			if prog.Type != elf.PT_NOTE {
				continue
			}
			data := make([]byte, min(prog.Filesz, 1<<14))
			if _, rerr := prog.ReadAt(data, 0); rerr != nil && rerr != io.EOF {
				continue
			}
			if id := parseELFNotes(data); id != nil {
				img.buildID = id
				break
			}
		}
	}
	if syms, serr := f.DynamicSymbols(); serr == nil {
		img.symbols = make(map[string]uint64, len(syms))
		for _, s := range syms {
			if s.Value != 0 {
				img.symbols[s.Name] = s.Value
			}
		}
	}
	return img, nil
}

// parseELFVirtual reads an ELF already mapped into a target address space.
// Section headers are usually not mapped, so everything comes from the
// program headers: build-id from PT_NOTE, symbols from PT_DYNAMIC.
func parseELFVirtual(r io.ReaderAt, imageBase uint64) (*elfImage, error) {
	var hdr [64]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, errBadImage
	}
	if !bytes.Equal(hdr[0:4], []byte(elf.ELFMAG)) {
		return nil, errBadImage
	}
	class := elf.Class(hdr[elf.EI_CLASS])
	if class != elf.ELFCLASS32 && class != elf.ELFCLASS64 {
		return nil, errBadImage
	}
	if elf.Data(hdr[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return nil, errBadImage
	}

	img := &elfImage{imageBase: imageBase, class: class}
	var phoff uint64
	var phentsize, phnum int
	if class == elf.ELFCLASS64 {
		img.exec = elf.Type(binary.LittleEndian.Uint16(hdr[16:18])) == elf.ET_EXEC
		img.machine = elf.Machine(binary.LittleEndian.Uint16(hdr[18:20]))
		phoff = binary.LittleEndian.Uint64(hdr[32:40])
		phentsize = int(binary.LittleEndian.Uint16(hdr[54:56]))
		phnum = int(binary.LittleEndian.Uint16(hdr[56:58]))
	} else {
		img.exec = elf.Type(binary.LittleEndian.Uint16(hdr[16:18])) == elf.ET_EXEC
		img.machine = elf.Machine(binary.LittleEndian.Uint16(hdr[18:20]))
		phoff = uint64(binary.LittleEndian.Uint32(hdr[28:32]))
		phentsize = int(binary.LittleEndian.Uint16(hdr[42:44]))
		phnum = int(binary.LittleEndian.Uint16(hdr[44:46]))
	}
	if phnum <= 0 || phnum > 128 || phentsize < 32 || phentsize > 128 {
		return nil, errBadImage
	}

	type phdr struct {
		typ    elf.ProgType
		vaddr  uint64
		filesz uint64
	}
	phdrs := make([]phdr, 0, phnum)
	raw := make([]byte, phentsize)
	for i := 0; i < phnum; i++ {
		// The program header table sits inside the first mapped page, so
		// phoff is a valid module-relative offset in memory too.
		if _, err := r.ReadAt(raw, int64(phoff)+int64(i*phentsize)); err != nil {
			return nil, errBadImage
		}
		var p phdr
		p.typ = elf.ProgType(binary.LittleEndian.Uint32(raw[0:4]))
		if class == elf.ELFCLASS64 {
			p.vaddr = binary.LittleEndian.Uint64(raw[16:24])
			p.filesz = binary.LittleEndian.Uint64(raw[32:40])
		} else {
			p.vaddr = uint64(binary.LittleEndian.Uint32(raw[8:12]))
			p.filesz = uint64(binary.LittleEndian.Uint32(raw[16:20]))
		}
		phdrs = append(phdrs, p)
	}

	var bias uint64
	haveLoad := false
	for _, p := range phdrs {
		if p.typ != elf.PT_LOAD {
			continue
		}
		v := p.vaddr &^ 0xFFF
		if !haveLoad || v < bias {
			bias = v
			haveLoad = true
		}
	}
	if !haveLoad {
		return nil, errBadImage
	}

	// vaddrOffset maps a virtual address found inside the image onto this
	// reader, which is based at the module load address. Loaded images often
	// carry relocated absolute pointers in their dynamic section; unrelocated
	// ones carry link-time vaddrs.
	vaddrOffset := func(v uint64) int64 {
		if imageBase != 0 && v >= imageBase {
			return int64(v - imageBase)
		}
		return int64(v - bias)
	}

	for _, p := range phdrs {
		if p.typ != elf.PT_NOTE || p.filesz == 0 {
			continue
		}
		data := make([]byte, min(p.filesz, 1<<14))
		if _, err := r.ReadAt(data, int64(p.vaddr-bias)); err != nil {
			continue
		}
		if id := parseELFNotes(data); id != nil {
			img.buildID = id
			break
		}
	}

	for _, p := range phdrs {
		if p.typ != elf.PT_DYNAMIC || p.filesz == 0 {
			continue
		}
		img.symbols = parseELFDynamicSymbols(r, p.vaddr-bias, p.filesz, class, vaddrOffset)
		break
	}
	return img, nil
}

// parseELFDynamicSymbols walks the dynamic section for the symbol and string
// tables and builds a name-to-offset map. Best effort: any inconsistency
// yields a nil map, never an error.
func parseELFDynamicSymbols(r io.ReaderAt, dynOff, dynSize uint64, class elf.Class, vaddrOffset func(uint64) int64) map[string]uint64 {
	entSize := uint64(16)
	if class == elf.ELFCLASS32 {
		entSize = 8
	}
	var symtab, strtab, strsz, hash, syment uint64
	ent := make([]byte, entSize)
	for off := uint64(0); off+entSize <= min(dynSize, 1<<16); off += entSize {
		if _, err := r.ReadAt(ent, int64(dynOff+off)); err != nil {
			return nil
		}
		var tag, val uint64
		if class == elf.ELFCLASS64 {
			tag = binary.LittleEndian.Uint64(ent[0:8])
			val = binary.LittleEndian.Uint64(ent[8:16])
		} else {
			tag = uint64(binary.LittleEndian.Uint32(ent[0:4]))
			val = uint64(binary.LittleEndian.Uint32(ent[4:8]))
		}
		switch tag {
		case elfDTNull:
			off = dynSize // done
		case elfDTSymtab:
			symtab = val
		case elfDTStrtab:
			strtab = val
		case elfDTStrsz:
			strsz = val
		case elfDTHash:
			hash = val
		case elfDTSyment:
			syment = val
		}
	}
	if symtab == 0 || strtab == 0 {
		return nil
	}
	if syment == 0 {
		if class == elf.ELFCLASS64 {
			syment = 24
		} else {
			syment = 16
		}
	}

	var count uint64
	if hash != 0 {
		var h [8]byte
		if _, err := r.ReadAt(h[:], vaddrOffset(hash)); err == nil {
			count = uint64(binary.LittleEndian.Uint32(h[4:8])) // nchain
		}
	}
	if count == 0 && strtab > symtab {
		count = (strtab - symtab) / syment
	}
	if count == 0 || count > elfMaxSymbols {
		return nil
	}

	strings := make([]byte, min(strsz, 1<<22))
	if len(strings) == 0 {
		return nil
	}
	if _, err := r.ReadAt(strings, vaddrOffset(strtab)); err != nil {
		return nil
	}

	syms := make(map[string]uint64, count)
	sym := make([]byte, syment)
	base := vaddrOffset(symtab)
	for i := uint64(0); i < count; i++ {
		if _, err := r.ReadAt(sym, base+int64(i*syment)); err != nil {
			break
		}
		var nameOff uint32
		var value uint64
		if class == elf.ELFCLASS64 {
			nameOff = binary.LittleEndian.Uint32(sym[0:4])
			value = binary.LittleEndian.Uint64(sym[8:16])
		} else {
			nameOff = binary.LittleEndian.Uint32(sym[0:4])
			value = uint64(binary.LittleEndian.Uint32(sym[4:8]))
		}
		if value == 0 || int(nameOff) >= len(strings) {
			continue
		}
		rest := strings[nameOff:]
		end := bytes.IndexByte(rest, 0)
		if end <= 0 {
			continue
		}
		syms[string(rest[:end])] = value
	}
	return syms
}

func (e *elfImage) exportAddress(name string) (uint64, bool) {
	v, ok := e.symbols[name]
	if !ok || v == 0 {
		return 0, false
	}
	if e.exec {
		return v, true
	}
	return e.imageBase + v, true
}

func (e *elfImage) architecture() entities.Architecture {
	switch e.machine {
	case elf.EM_386:
		return entities.ArchX86
	case elf.EM_X86_64:
		return entities.ArchAMD64
	case elf.EM_ARM:
		return entities.ArchARM
	case elf.EM_AARCH64:
		return entities.ArchARM64
	default:
		return entities.ArchUnknown
	}
}

// parseELFNotes scans a note segment for the GNU build-id entry.
func parseELFNotes(data []byte) []byte {
	align4 := func(n uint32) uint32 { return (n + 3) &^ 3 }
	for off := uint32(0); int(off)+12 <= len(data); {
		namesz := binary.LittleEndian.Uint32(data[off : off+4])
		descsz := binary.LittleEndian.Uint32(data[off+4 : off+8])
		ntype := binary.LittleEndian.Uint32(data[off+8 : off+12])
		nameOff := off + 12
		descOff := nameOff + align4(namesz)
		next := descOff + align4(descsz)
		if namesz > 1024 || descsz > 1024 || int(next) > len(data) || next <= off {
			return nil
		}
		name := data[nameOff : nameOff+namesz]
		if ntype == elfNoteGNUBuildID && bytes.Equal(name, []byte("GNU\x00")) && descsz > 0 {
			return bytes.Clone(data[descOff : descOff+descsz])
		}
		off = next
	}
	return nil
}
