package services

import (
	"bytes"
	"encoding/binary"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// RuntimeInfoExport is the well-known exported marker symbol a single-file
// host publishes. Its address, when present and non-zero, points at a
// runtimeInfoRecord in target memory.
const RuntimeInfoExport = "DotNetRuntimeInfo"

const (
	runtimeInfoSignature = "DotNetRuntimeInfo"
	runtimeInfoSize      = 96
	moduleIndexSize      = 24
)

// runtimeInfoRecord is the fixed-layout record behind the marker export. The
// signature occupies 18 bytes, the version sits at its natural 4-byte
// alignment, and each module index is a length-prefixed blob: an 8-byte
// timestamp+size pair on Windows targets, build-id bytes elsewhere. Version 0
// means absent/invalid.
type runtimeInfoRecord struct {
	version      int32
	runtimeIndex [moduleIndexSize]byte
	dacIndex     [moduleIndexSize]byte
	dbiIndex     [moduleIndexSize]byte
}

// readRuntimeInfoRecord reads and validates the marker record from target
// memory. Any read or validation failure means "not single-file hosted" and
// is reported as absence, never as an error.
func readRuntimeInfoRecord(target interfaces.DataTarget, addr uint64) (runtimeInfoRecord, bool) {
	var rec runtimeInfoRecord
	buf := make([]byte, runtimeInfoSize)
	n, err := target.ReadMemory(addr, buf)
	if err != nil || n < runtimeInfoSize {
		return rec, false
	}
	if !bytes.Equal(buf[:len(runtimeInfoSignature)], []byte(runtimeInfoSignature)) {
		return rec, false
	}
	rec.version = int32(binary.LittleEndian.Uint32(buf[20:24]))
	if rec.version == 0 {
		return rec, false
	}
	copy(rec.runtimeIndex[:], buf[24:48])
	copy(rec.dacIndex[:], buf[48:72])
	copy(rec.dbiIndex[:], buf[72:96])
	return rec, true
}

// parseModuleIndex decodes one length-prefixed module index into an identity
// following the platform's scheme. Zero or empty fields decode to an empty
// identity, which callers must treat as "no candidate".
func parseModuleIndex(index [moduleIndexSize]byte, platform entities.Platform) entities.BinaryIdentity {
	n := int(index[0])
	if n <= 0 || n >= moduleIndexSize {
		return entities.BinaryIdentity{}
	}
	payload := index[1 : 1+n]
	if platform == entities.PlatformWindows {
		if n < 8 {
			return entities.BinaryIdentity{}
		}
		timeStamp := binary.LittleEndian.Uint32(payload[0:4])
		fileSize := binary.LittleEndian.Uint32(payload[4:8])
		if timeStamp == 0 && fileSize == 0 {
			return entities.BinaryIdentity{}
		}
		return entities.PEIdentity(timeStamp, fileSize)
	}
	return entities.BuildIDIdentity(payload)
}
