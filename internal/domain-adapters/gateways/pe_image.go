package gateways

import (
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// Portable-executable constants. Only the headers and directories the
// resolver needs are modeled; debug/pe exposes neither the export nor the
// resource directory, and cannot read the virtual (relocated) layout at all.
const (
	peDOSMagic    = 0x5A4D
	peNTSignature = 0x00004550
	peMagic32     = 0x010B
	peMagic64     = 0x020B

	peDirExport        = 0
	peDirResource      = 2
	peDirDebug         = 6
	peDirComDescriptor = 14

	peFileDLL = 0x2000

	peMachineI386  = 0x014C
	peMachineARMNT = 0x01C4
	peMachineAMD64 = 0x8664
	peMachineARM64 = 0xAA64

	peDebugTypeCodeView = 2
	peCodeViewRSDS      = 0x53445352

	peFixedFileInfoSignature = 0xFEEF04BD
)

var errBadImage = errors.New("not a valid image")

type peDataDir struct {
	rva  uint32
	size uint32
}

type peSection struct {
	virtualSize    uint32
	virtualAddress uint32
	rawSize        uint32
	rawOffset      uint32
}

// peImage is one parsed PE module. virtual selects how RVAs map onto the
// underlying byte source: identity for an in-memory image, section-table
// translation for a raw file.
type peImage struct {
	r               io.ReaderAt
	virtual         bool
	imageBase       uint64
	machine         uint16
	characteristics uint16
	timeStamp       uint32
	sizeOfImage     uint32
	sections        []peSection
	dirs            [16]peDataDir
}

func parsePE(r io.ReaderAt, size int64, imageBase uint64, virtual bool) (*peImage, error) {
	var dos [0x40]byte
	if _, err := r.ReadAt(dos[:], 0); err != nil {
		return nil, errBadImage
	}
	if binary.LittleEndian.Uint16(dos[0:2]) != peDOSMagic {
		return nil, errBadImage
	}
	ntOff := int64(binary.LittleEndian.Uint32(dos[0x3C:0x40]))
	if ntOff < 0x40 || ntOff > 0x10000 {
		return nil, errBadImage
	}

	var hdr [24]byte // PE signature + IMAGE_FILE_HEADER
	if _, err := r.ReadAt(hdr[:], ntOff); err != nil {
		return nil, errBadImage
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != peNTSignature {
		return nil, errBadImage
	}

	img := &peImage{r: r, virtual: virtual, imageBase: imageBase}
	img.machine = binary.LittleEndian.Uint16(hdr[4:6])
	numSections := int(binary.LittleEndian.Uint16(hdr[6:8]))
	img.timeStamp = binary.LittleEndian.Uint32(hdr[8:12])
	optSize := int(binary.LittleEndian.Uint16(hdr[20:22]))
	img.characteristics = binary.LittleEndian.Uint16(hdr[22:24])
	if numSections <= 0 || numSections > 96 || optSize < 96 || optSize > 0x1000 {
		return nil, errBadImage
	}

	opt := make([]byte, optSize)
	optOff := ntOff + int64(len(hdr))
	if _, err := r.ReadAt(opt, optOff); err != nil {
		return nil, errBadImage
	}
	var dirBase int
	switch binary.LittleEndian.Uint16(opt[0:2]) {
	case peMagic32:
		dirBase = 96
	case peMagic64:
		dirBase = 112
	default:
		return nil, errBadImage
	}
	img.sizeOfImage = binary.LittleEndian.Uint32(opt[56:60])
	if dirBase > optSize {
		return nil, errBadImage
	}
	numDirs := int(binary.LittleEndian.Uint32(opt[dirBase-4 : dirBase]))
	for i := 0; i < 16 && i < numDirs && dirBase+8*(i+1) <= optSize; i++ {
		img.dirs[i] = peDataDir{
			rva:  binary.LittleEndian.Uint32(opt[dirBase+8*i:]),
			size: binary.LittleEndian.Uint32(opt[dirBase+8*i+4:]),
		}
	}

	sec := make([]byte, 40*numSections)
	if _, err := r.ReadAt(sec, optOff+int64(optSize)); err != nil {
		return nil, errBadImage
	}
	for i := 0; i < numSections; i++ {
		b := sec[40*i:]
		img.sections = append(img.sections, peSection{
			virtualSize:    binary.LittleEndian.Uint32(b[8:12]),
			virtualAddress: binary.LittleEndian.Uint32(b[12:16]),
			rawSize:        binary.LittleEndian.Uint32(b[16:20]),
			rawOffset:      binary.LittleEndian.Uint32(b[20:24]),
		})
	}
	if err := img.checkLayout(size); err != nil {
		return nil, err
	}
	return img, nil
}

// checkLayout probes one byte inside the highest section to decide whether
// the chosen addressing mode can actually reach the image's data. A raw file
// on disk is usually far smaller than SizeOfImage, which is what makes the
// virtual attempt fail and the raw retry succeed.
func (p *peImage) checkLayout(size int64) error {
	var probe int64
	for _, s := range p.sections {
		var at int64
		if p.virtual {
			if s.virtualSize == 0 {
				continue
			}
			at = int64(s.virtualAddress)
		} else {
			if s.rawSize == 0 {
				continue
			}
			at = int64(s.rawOffset)
		}
		if at > probe {
			probe = at
		}
	}
	if probe == 0 {
		return nil
	}
	if size > 0 && probe >= size {
		return errBadImage
	}
	var b [1]byte
	if _, err := p.r.ReadAt(b[:], probe); err != nil {
		return errBadImage
	}
	return nil
}

// offset translates an RVA into an offset on the underlying byte source.
func (p *peImage) offset(rva uint32) (int64, bool) {
	if p.virtual {
		return int64(rva), true
	}
	for _, s := range p.sections {
		span := s.virtualSize
		if span == 0 {
			span = s.rawSize
		}
		if rva >= s.virtualAddress && rva-s.virtualAddress < span {
			d := rva - s.virtualAddress
			if d >= s.rawSize {
				return 0, false
			}
			return int64(s.rawOffset) + int64(d), true
		}
	}
	if len(p.sections) > 0 && rva < p.sections[0].virtualAddress {
		// Headers precede the first section and map one-to-one.
		return int64(rva), true
	}
	return 0, false
}

func (p *peImage) readAt(rva uint32, buf []byte) bool {
	off, ok := p.offset(rva)
	if !ok {
		return false
	}
	_, err := p.r.ReadAt(buf, off)
	return err == nil
}

func (p *peImage) u16(rva uint32) (uint16, bool) {
	var b [2]byte
	if !p.readAt(rva, b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[:]), true
}

func (p *peImage) u32(rva uint32) (uint32, bool) {
	var b [4]byte
	if !p.readAt(rva, b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}

func (p *peImage) cstring(rva uint32, maxLen int) (string, bool) {
	buf := make([]byte, maxLen)
	off, ok := p.offset(rva)
	if !ok {
		return "", false
	}
	n, err := p.r.ReadAt(buf, off)
	if n == 0 && err != nil {
		return "", false
	}
	if i := strings.IndexByte(string(buf[:n]), 0); i >= 0 {
		return string(buf[:i]), true
	}
	return "", false
}

func (p *peImage) isManaged() bool {
	return p.dirs[peDirComDescriptor].rva != 0
}

func (p *peImage) isExecutable() bool {
	return p.characteristics&peFileDLL == 0
}

func (p *peImage) architecture() entities.Architecture {
	switch p.machine {
	case peMachineI386:
		return entities.ArchX86
	case peMachineAMD64:
		return entities.ArchAMD64
	case peMachineARMNT:
		return entities.ArchARM
	case peMachineARM64:
		return entities.ArchARM64
	default:
		return entities.ArchUnknown
	}
}

// exportAddress walks the export name table for an exact match. A zero
// function RVA marks an unbound export and resolves to absent.
func (p *peImage) exportAddress(name string) (uint64, bool) {
	dir := p.dirs[peDirExport]
	if dir.rva == 0 || dir.size == 0 {
		return 0, false
	}
	var ed [40]byte // IMAGE_EXPORT_DIRECTORY
	if !p.readAt(dir.rva, ed[:]) {
		return 0, false
	}
	funcsRVA := binary.LittleEndian.Uint32(ed[28:32])
	namesRVA := binary.LittleEndian.Uint32(ed[32:36])
	ordsRVA := binary.LittleEndian.Uint32(ed[36:40])
	numNames := binary.LittleEndian.Uint32(ed[24:28])
	if numNames > 1<<20 {
		return 0, false
	}
	for i := uint32(0); i < numNames; i++ {
		nameRVA, ok := p.u32(namesRVA + 4*i)
		if !ok {
			return 0, false
		}
		s, ok := p.cstring(nameRVA, 512)
		if !ok || s != name {
			continue
		}
		ord, ok := p.u16(ordsRVA + 2*i)
		if !ok {
			return 0, false
		}
		fnRVA, ok := p.u32(funcsRVA + 4*uint32(ord))
		if !ok || fnRVA == 0 {
			return 0, false
		}
		return p.imageBase + uint64(fnRVA), true
	}
	return 0, false
}

// Well-known resource type ids, so the id level of the tree can be addressed
// by name like the named levels.
var peResourceTypeNames = map[uint32]string{
	10: "RCData",
	16: "Version",
}

// resourceData walks the resource directory by path segments, then descends
// through the first child of the final matched node until a data entry is
// reached.
func (p *peImage) resourceData(path []string) ([]byte, bool) {
	root := p.dirs[peDirResource].rva
	if root == 0 {
		return nil, false
	}
	nodeOff := uint32(0)
	for _, seg := range path {
		entry, subdir, ok := p.findResourceEntry(root, nodeOff, seg)
		if !ok || !subdir {
			return nil, false
		}
		nodeOff = entry
	}
	for depth := 0; depth < 4; depth++ {
		entry, subdir, ok := p.resourceEntry(root, nodeOff, 0)
		if !ok {
			return nil, false
		}
		if subdir {
			nodeOff = entry
			continue
		}
		var de [16]byte // IMAGE_RESOURCE_DATA_ENTRY
		if !p.readAt(root+entry, de[:]) {
			return nil, false
		}
		dataRVA := binary.LittleEndian.Uint32(de[0:4])
		n := binary.LittleEndian.Uint32(de[4:8])
		if n == 0 || n > 1<<26 {
			return nil, false
		}
		buf := make([]byte, n)
		if !p.readAt(dataRVA, buf) {
			return nil, false
		}
		return buf, true
	}
	return nil, false
}

// resourceEntry reads entry index of the directory node at nodeOff. The high
// bit of the entry offset marks a subdirectory.
func (p *peImage) resourceEntry(root, nodeOff uint32, index int) (off uint32, subdir, ok bool) {
	var hdr [16]byte // IMAGE_RESOURCE_DIRECTORY
	if !p.readAt(root+nodeOff, hdr[:]) {
		return 0, false, false
	}
	total := int(binary.LittleEndian.Uint16(hdr[12:14])) + int(binary.LittleEndian.Uint16(hdr[14:16]))
	if index >= total || total > 4096 {
		return 0, false, false
	}
	var e [8]byte
	if !p.readAt(root+nodeOff+16+uint32(8*index), e[:]) {
		return 0, false, false
	}
	raw := binary.LittleEndian.Uint32(e[4:8])
	return raw &^ 0x80000000, raw&0x80000000 != 0, true
}

func (p *peImage) findResourceEntry(root, nodeOff uint32, name string) (off uint32, subdir, ok bool) {
	var hdr [16]byte
	if !p.readAt(root+nodeOff, hdr[:]) {
		return 0, false, false
	}
	total := int(binary.LittleEndian.Uint16(hdr[12:14])) + int(binary.LittleEndian.Uint16(hdr[14:16]))
	if total > 4096 {
		return 0, false, false
	}
	for i := 0; i < total; i++ {
		var e [8]byte
		if !p.readAt(root+nodeOff+16+uint32(8*i), e[:]) {
			return 0, false, false
		}
		id := binary.LittleEndian.Uint32(e[0:4])
		raw := binary.LittleEndian.Uint32(e[4:8])
		var entryName string
		if id&0x80000000 != 0 {
			entryName, _ = p.resourceName(root + (id &^ 0x80000000))
		} else if wk, found := peResourceTypeNames[id]; found {
			entryName = wk
		} else {
			entryName = strconv.FormatUint(uint64(id), 10)
		}
		if strings.EqualFold(entryName, name) {
			return raw &^ 0x80000000, raw&0x80000000 != 0, true
		}
	}
	return 0, false, false
}

// resourceName reads a counted UTF-16 resource name.
func (p *peImage) resourceName(rva uint32) (string, bool) {
	n, ok := p.u16(rva)
	if !ok || n == 0 || n > 256 {
		return "", false
	}
	buf := make([]byte, 2*int(n))
	if !p.readAt(rva+2, buf) {
		return "", false
	}
	u := make([]uint16, n)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}
	return string(utf16.Decode(u)), true
}

// fileVersion extracts the fixed file version from the version resource. The
// surrounding VS_VERSIONINFO block is variable-layout UTF-16, so the fixed
// part is found by its signature.
func (p *peImage) fileVersion() entities.Version {
	data, ok := p.resourceData([]string{"Version"})
	if !ok {
		return entities.Version{}
	}
	for i := 0; i+16 <= len(data); i += 4 {
		if binary.LittleEndian.Uint32(data[i:]) != peFixedFileInfoSignature {
			continue
		}
		ms := binary.LittleEndian.Uint32(data[i+8:])
		ls := binary.LittleEndian.Uint32(data[i+12:])
		return entities.Version{
			Major:    int(ms >> 16),
			Minor:    int(ms & 0xFFFF),
			Build:    int(ls >> 16),
			Revision: int(ls & 0xFFFF),
		}
	}
	return entities.Version{}
}

// symbolFile reads the RSDS codeview record from the debug directory.
func (p *peImage) symbolFile() (entities.SymbolReference, bool) {
	dir := p.dirs[peDirDebug]
	count := int(dir.size / 28)
	if dir.rva == 0 || count == 0 || count > 64 {
		return entities.SymbolReference{}, false
	}
	for i := 0; i < count; i++ {
		var e [28]byte // IMAGE_DEBUG_DIRECTORY
		if !p.readAt(dir.rva+uint32(28*i), e[:]) {
			return entities.SymbolReference{}, false
		}
		if binary.LittleEndian.Uint32(e[12:16]) != peDebugTypeCodeView {
			continue
		}
		size := binary.LittleEndian.Uint32(e[16:20])
		if size < 24 || size > 24+1024 {
			continue
		}
		var at int64
		if p.virtual {
			off, ok := p.offset(binary.LittleEndian.Uint32(e[20:24]))
			if !ok {
				continue
			}
			at = off
		} else {
			// PointerToRawData is already a file offset.
			at = int64(binary.LittleEndian.Uint32(e[24:28]))
		}
		cv := make([]byte, size)
		if _, err := p.r.ReadAt(cv, at); err != nil {
			continue
		}
		if binary.LittleEndian.Uint32(cv[0:4]) != peCodeViewRSDS {
			continue
		}
		ref := entities.SymbolReference{Age: binary.LittleEndian.Uint32(cv[20:24])}
		copy(ref.GUID[:], cv[4:20])
		if end := strings.IndexByte(string(cv[24:]), 0); end >= 0 {
			ref.FileName = string(cv[24 : 24+end])
		} else {
			ref.FileName = string(cv[24:])
		}
		return ref, true
	}
	return entities.SymbolReference{}, false
}
