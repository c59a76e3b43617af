package gateways

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"io"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// Mach-O constants for the virtual-layout parser. Only 64-bit little-endian
// images are handled in memory; every supported macOS target is one.
const (
	machoMagic64 = 0xFEEDFACF

	machoTypeExec = 2

	machoLCSymtab    = 0x02
	machoLCSegment64 = 0x19
	machoLCUUID      = 0x1B

	machoMaxSymbols = 1 << 17
)

// machoImage is one parsed Mach-O module: its UUID and symbol table, with
// symbol values normalized to module-relative offsets.
type machoImage struct {
	imageBase uint64
	arch      entities.Architecture
	exec      bool
	uuid      []byte
	symbols   map[string]uint64
}

func parseMachO(r io.ReaderAt, imageBase uint64, virtual bool) (*machoImage, error) {
	if virtual {
		return parseMachOVirtual(r, imageBase)
	}
	return parseMachORaw(r, imageBase)
}

// parseMachORaw reads a raw on-disk Mach-O through debug/macho.
func parseMachORaw(r io.ReaderAt, imageBase uint64) (*machoImage, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, err
	}
	img := &machoImage{
		imageBase: imageBase,
		arch:      machoCPUArch(f.Cpu),
		exec:      f.Type == macho.TypeExec,
	}
	for _, l := range f.Loads {
		raw, ok := l.(macho.LoadBytes)
		if !ok || len(raw) < 24 {
			continue
		}
		if binary.LittleEndian.Uint32(raw[0:4]) == machoLCUUID {
			img.uuid = bytes.Clone(raw[8:24])
			break
		}
	}
	var textBase uint64
	if seg := f.Segment("__TEXT"); seg != nil {
		textBase = seg.Addr
	}
	if f.Symtab != nil {
		img.symbols = make(map[string]uint64, len(f.Symtab.Syms))
		for _, s := range f.Symtab.Syms {
			if s.Value != 0 && s.Sect != 0 && s.Value >= textBase {
				img.symbols[s.Name] = s.Value - textBase
			}
		}
	}
	return img, nil
}

// parseMachOVirtual reads a Mach-O already mapped into a target address
// space. Symbol and string tables live in __LINKEDIT and are addressed by
// file offset, so offsets are translated through the segment commands.
func parseMachOVirtual(r io.ReaderAt, imageBase uint64) (*machoImage, error) {
	var hdr [32]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, errBadImage
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != machoMagic64 {
		return nil, errBadImage
	}
	img := &machoImage{
		imageBase: imageBase,
		arch:      machoCPUArch(macho.Cpu(binary.LittleEndian.Uint32(hdr[4:8]))),
		exec:      binary.LittleEndian.Uint32(hdr[12:16]) == machoTypeExec,
	}
	ncmds := binary.LittleEndian.Uint32(hdr[16:20])
	sizeofcmds := binary.LittleEndian.Uint32(hdr[20:24])
	if ncmds == 0 || ncmds > 1024 || sizeofcmds == 0 || sizeofcmds > 1<<20 {
		return nil, errBadImage
	}
	cmds := make([]byte, sizeofcmds)
	if _, err := r.ReadAt(cmds, 32); err != nil {
		return nil, errBadImage
	}

	type segment struct {
		vmaddr  uint64
		fileoff uint64
		filesz  uint64
	}
	var segs []segment
	var symoff, stroff uint64
	var nsyms, strsz uint32
	for off, i := uint32(0), uint32(0); i < ncmds && off+8 <= sizeofcmds; i++ {
		cmd := binary.LittleEndian.Uint32(cmds[off : off+4])
		cmdsize := binary.LittleEndian.Uint32(cmds[off+4 : off+8])
		if cmdsize < 8 || off+cmdsize > sizeofcmds {
			return nil, errBadImage
		}
		body := cmds[off : off+cmdsize]
		switch cmd {
		case machoLCSegment64:
			if len(body) >= 56 {
				segs = append(segs, segment{
					vmaddr:  binary.LittleEndian.Uint64(body[24:32]),
					fileoff: binary.LittleEndian.Uint64(body[40:48]),
					filesz:  binary.LittleEndian.Uint64(body[48:56]),
				})
			}
		case machoLCUUID:
			if len(body) >= 24 {
				img.uuid = bytes.Clone(body[8:24])
			}
		case machoLCSymtab:
			if len(body) >= 24 {
				symoff = uint64(binary.LittleEndian.Uint32(body[8:12]))
				nsyms = binary.LittleEndian.Uint32(body[12:16])
				stroff = uint64(binary.LittleEndian.Uint32(body[16:20]))
				strsz = binary.LittleEndian.Uint32(body[20:24])
			}
		}
		off += cmdsize
	}

	var textBase uint64
	haveText := false
	for _, s := range segs {
		if s.fileoff == 0 && s.filesz > 0 && (!haveText || s.vmaddr < textBase) {
			textBase = s.vmaddr
			haveText = true
		}
	}
	if !haveText {
		return nil, errBadImage
	}

	// fileOffset maps a file offset onto this reader via the segment that
	// contains it; the reader is based at the module load address.
	fileOffset := func(fo uint64) (int64, bool) {
		for _, s := range segs {
			if fo >= s.fileoff && fo < s.fileoff+s.filesz {
				return int64(s.vmaddr - textBase + (fo - s.fileoff)), true
			}
		}
		return 0, false
	}

	if symoff != 0 && nsyms > 0 && nsyms <= machoMaxSymbols && stroff != 0 {
		symAt, okSym := fileOffset(symoff)
		strAt, okStr := fileOffset(stroff)
		if okSym && okStr {
			strings := make([]byte, min(strsz, 1<<22))
			if _, err := r.ReadAt(strings, strAt); err == nil {
				img.symbols = make(map[string]uint64, nsyms)
				var nl [16]byte // nlist_64
				for i := uint32(0); i < nsyms; i++ {
					if _, err := r.ReadAt(nl[:], symAt+int64(i)*16); err != nil {
						break
					}
					strx := binary.LittleEndian.Uint32(nl[0:4])
					sect := nl[5]
					value := binary.LittleEndian.Uint64(nl[8:16])
					if value == 0 || sect == 0 || int(strx) >= len(strings) {
						continue
					}
					rest := strings[strx:]
					end := bytes.IndexByte(rest, 0)
					if end <= 0 || value < textBase {
						continue
					}
					img.symbols[string(rest[:end])] = value - textBase
				}
			}
		}
	}
	return img, nil
}

// exportAddress tolerates the C underscore prefix Mach-O symbols carry.
func (m *machoImage) exportAddress(name string) (uint64, bool) {
	v, ok := m.symbols[name]
	if !ok {
		v, ok = m.symbols["_"+name]
	}
	if !ok || v == 0 {
		return 0, false
	}
	return m.imageBase + v, true
}

func machoCPUArch(cpu macho.Cpu) entities.Architecture {
	switch cpu {
	case macho.Cpu386:
		return entities.ArchX86
	case macho.CpuAmd64:
		return entities.ArchAMD64
	case macho.CpuArm:
		return entities.ArchARM
	case macho.CpuArm64:
		return entities.ArchARM64
	default:
		return entities.ArchUnknown
	}
}
