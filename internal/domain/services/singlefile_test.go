package services

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// fakeTarget is an in-memory data target backed by a sparse address map.
type fakeTarget struct {
	platform entities.Platform
	arch     entities.Architecture
	memory   map[uint64][]byte
}

func (t *fakeTarget) TargetPlatform() entities.Platform {
	return t.platform
}

func (t *fakeTarget) TargetArchitecture() entities.Architecture {
	return t.arch
}

func (t *fakeTarget) PointerSize() int {
	return t.arch.PointerSize()
}

func (t *fakeTarget) ReadMemory(addr uint64, buf []byte) (int, error) {
	data, ok := t.memory[addr]
	if !ok {
		return 0, errors.New("unmapped address")
	}
	return copy(buf, data), nil
}

// buildRuntimeInfo assembles a marker record with the given indexes.
func buildRuntimeInfo(version int32, runtimeIdx, dacIdx, dbiIdx []byte) []byte {
	buf := make([]byte, 96)
	copy(buf, "DotNetRuntimeInfo")
	binary.LittleEndian.PutUint32(buf[20:24], uint32(version))
	copy(buf[24:48], runtimeIdx)
	copy(buf[48:72], dacIdx)
	copy(buf[72:96], dbiIdx)
	return buf
}

// peIndex encodes a timestamp+size pair as a length-prefixed module index.
func peIndex(timeStamp, fileSize uint32) []byte {
	out := make([]byte, 9)
	out[0] = 8
	binary.LittleEndian.PutUint32(out[1:5], timeStamp)
	binary.LittleEndian.PutUint32(out[5:9], fileSize)
	return out
}

// buildIDIndex encodes build-id bytes as a length-prefixed module index.
func buildIDIndex(id []byte) []byte {
	out := make([]byte, 1+len(id))
	out[0] = byte(len(id))
	copy(out[1:], id)
	return out
}

// TestReadRuntimeInfoRecord tests marker record validation
func TestReadRuntimeInfoRecord(t *testing.T) {
	const addr = 0x7f0000001000

	t.Run("valid record", func(t *testing.T) {
		target := &fakeTarget{
			platform: entities.PlatformLinux,
			arch:     entities.ArchAMD64,
			memory: map[uint64][]byte{
				addr: buildRuntimeInfo(1, buildIDIndex([]byte{1, 2}), buildIDIndex([]byte{3, 4}), nil),
			},
		}
		rec, ok := readRuntimeInfoRecord(target, addr)
		if !ok {
			t.Fatal("readRuntimeInfoRecord() ok = false, want true")
		}
		if rec.version != 1 {
			t.Errorf("version = %d, want 1", rec.version)
		}
		if rec.dacIndex[0] != 2 || rec.dacIndex[1] != 3 || rec.dacIndex[2] != 4 {
			t.Errorf("dacIndex = %v, want length-prefixed {3 4}", rec.dacIndex[:3])
		}
	})

	t.Run("version zero is absent", func(t *testing.T) {
		target := &fakeTarget{
			memory: map[uint64][]byte{addr: buildRuntimeInfo(0, nil, nil, nil)},
		}
		if _, ok := readRuntimeInfoRecord(target, addr); ok {
			t.Error("readRuntimeInfoRecord() with version 0 ok = true, want false")
		}
	})

	t.Run("wrong signature", func(t *testing.T) {
		buf := buildRuntimeInfo(1, nil, nil, nil)
		buf[0] = 'X'
		target := &fakeTarget{memory: map[uint64][]byte{addr: buf}}
		if _, ok := readRuntimeInfoRecord(target, addr); ok {
			t.Error("readRuntimeInfoRecord() with bad signature ok = true, want false")
		}
	})

	t.Run("unreadable memory", func(t *testing.T) {
		target := &fakeTarget{memory: map[uint64][]byte{}}
		if _, ok := readRuntimeInfoRecord(target, addr); ok {
			t.Error("readRuntimeInfoRecord() on unmapped memory ok = true, want false")
		}
	})

	t.Run("short read", func(t *testing.T) {
		target := &fakeTarget{
			memory: map[uint64][]byte{addr: buildRuntimeInfo(1, nil, nil, nil)[:40]},
		}
		if _, ok := readRuntimeInfoRecord(target, addr); ok {
			t.Error("readRuntimeInfoRecord() on short record ok = true, want false")
		}
	})
}

// TestParseModuleIndex tests the per-platform index decoding
func TestParseModuleIndex(t *testing.T) {
	toIndex := func(b []byte) (out [24]byte) {
		copy(out[:], b)
		return
	}

	t.Run("windows timestamp and size", func(t *testing.T) {
		id := parseModuleIndex(toIndex(peIndex(0xAA, 0xBB)), entities.PlatformWindows)
		if !id.HasPESignature() {
			t.Fatal("expected a PE identity")
		}
		if id.TimeStamp() != 0xAA || id.FileSize() != 0xBB {
			t.Errorf("identity = %08X/%x, want AA/bb", id.TimeStamp(), id.FileSize())
		}
	})

	t.Run("windows zero pair is empty", func(t *testing.T) {
		if id := parseModuleIndex(toIndex(peIndex(0, 0)), entities.PlatformWindows); !id.IsEmpty() {
			t.Errorf("identity = %s, want empty", id)
		}
	})

	t.Run("windows short payload is empty", func(t *testing.T) {
		if id := parseModuleIndex(toIndex(buildIDIndex([]byte{1, 2, 3})), entities.PlatformWindows); !id.IsEmpty() {
			t.Errorf("identity = %s, want empty", id)
		}
	})

	t.Run("linux build-id", func(t *testing.T) {
		want := []byte{0xde, 0xad, 0xbe, 0xef}
		id := parseModuleIndex(toIndex(buildIDIndex(want)), entities.PlatformLinux)
		if !id.HasBuildID() {
			t.Fatal("expected a build-id identity")
		}
		if got := id.String(); got != "deadbeef" {
			t.Errorf("build-id = %s, want deadbeef", got)
		}
	})

	t.Run("zero length is empty", func(t *testing.T) {
		if id := parseModuleIndex([24]byte{}, entities.PlatformLinux); !id.IsEmpty() {
			t.Errorf("identity = %s, want empty", id)
		}
	})

	t.Run("length exceeding the index is empty", func(t *testing.T) {
		var idx [24]byte
		idx[0] = 24
		if id := parseModuleIndex(idx, entities.PlatformLinux); !id.IsEmpty() {
			t.Errorf("identity = %s, want empty", id)
		}
	})
}
