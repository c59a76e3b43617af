package gateways

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// sliceTarget serves one contiguous memory range.
type sliceTarget struct {
	base uint64
	data []byte
}

func (t *sliceTarget) TargetPlatform() entities.Platform         { return entities.PlatformWindows }
func (t *sliceTarget) TargetArchitecture() entities.Architecture { return entities.ArchAMD64 }
func (t *sliceTarget) PointerSize() int                          { return 8 }

func (t *sliceTarget) ReadMemory(addr uint64, buf []byte) (int, error) {
	if addr < t.base || addr >= t.base+uint64(len(t.data)) {
		return 0, errors.New("unmapped address")
	}
	return copy(buf, t.data[addr-t.base:]), nil
}

// TestUnparsableImage tests that garbage bytes settle into a permanent
// unparsable state with zero-value accessors
func TestUnparsableImage(t *testing.T) {
	garbage := bytes.Repeat([]byte{0x42}, 512)
	img := NewImageView(bytes.NewReader(garbage), int64(len(garbage)), 0)

	for i := 0; i < 2; i++ {
		if img.Parsed() {
			t.Fatal("Parsed() = true for garbage bytes")
		}
		if !img.Version().IsZero() {
			t.Error("Version() is non-zero for garbage bytes")
		}
		if _, _, ok := img.PEIdentity(); ok {
			t.Error("PEIdentity() ok = true for garbage bytes")
		}
		if img.BuildID() != nil {
			t.Error("BuildID() non-nil for garbage bytes")
		}
		if _, ok := img.ExportAddress("anything"); ok {
			t.Error("ExportAddress() ok = true for garbage bytes")
		}
		if _, ok := img.ResourceData("RCData"); ok {
			t.Error("ResourceData() ok = true for garbage bytes")
		}
	}
}

// TestEmptyImage tests a zero-length byte source
func TestEmptyImage(t *testing.T) {
	img := NewImageView(bytes.NewReader(nil), 0, 0)
	if img.Parsed() {
		t.Error("Parsed() = true for an empty source")
	}
}

// TestTargetBackedImage tests parsing a module straight out of target memory
func TestTargetBackedImage(t *testing.T) {
	const base = 0x7ff800000000
	data := buildTestPE(true, true)
	target := &sliceTarget{base: base, data: data}

	img := NewTargetImage(target, base, uint64(len(data)))
	if !img.Parsed() {
		t.Fatal("Parsed() = false, want true")
	}
	ts, size, ok := img.PEIdentity()
	if !ok || ts != testPETimeStamp || size != testPESizeOfImage {
		t.Errorf("PEIdentity() = %x/%x/%v, want %x/%x/true", ts, size, ok, testPETimeStamp, testPESizeOfImage)
	}
	addr, ok := img.ExportAddress("DotNetRuntimeInfo")
	if !ok || addr != base+testPEMarkerRVA {
		t.Errorf("ExportAddress() = %#x/%v, want %#x/true", addr, ok, uint64(base+testPEMarkerRVA))
	}
}

// TestFileProber tests the on-disk prober
func TestFileProber(t *testing.T) {
	tmpDir := t.TempDir()
	prober := NewFileProber()

	pePath := filepath.Join(tmpDir, "coreclr.dll")
	if err := os.WriteFile(pePath, buildTestPE(false, true), 0600); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}

	t.Run("existing image", func(t *testing.T) {
		if !prober.FileExists(pePath) {
			t.Error("FileExists() = false for an existing file")
		}
		img, err := prober.OpenImage(pePath)
		if err != nil {
			t.Fatalf("OpenImage() error = %v", err)
		}
		if !img.Parsed() {
			t.Error("Parsed() = false for a valid image file")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(tmpDir, "nope.dll")
		if prober.FileExists(missing) {
			t.Error("FileExists() = true for a missing file")
		}
		if _, err := prober.OpenImage(missing); err == nil {
			t.Error("OpenImage() error = nil for a missing file")
		}
	})

	t.Run("directory is not a file", func(t *testing.T) {
		if prober.FileExists(tmpDir) {
			t.Error("FileExists() = true for a directory")
		}
	})
}

// TestProbeSessionFactory tests candidate validation during session opening
func TestProbeSessionFactory(t *testing.T) {
	tmpDir := t.TempDir()
	factory := NewProbeSessionFactory()
	target := &sliceTarget{}

	t.Run("valid candidate", func(t *testing.T) {
		path := filepath.Join(tmpDir, "mscordaccore.dll")
		if err := os.WriteFile(path, buildTestPE(false, true), 0600); err != nil {
			t.Fatalf("failed to write test image: %v", err)
		}
		session, err := factory.OpenSession(path, target)
		if err != nil {
			t.Fatalf("OpenSession() error = %v", err)
		}
		if session.DataAccessPath() != path {
			t.Errorf("DataAccessPath() = %q, want %q", session.DataAccessPath(), path)
		}
		if err := session.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("unparsable candidate", func(t *testing.T) {
		path := filepath.Join(tmpDir, "junk.dll")
		if err := os.WriteFile(path, []byte("not an image"), 0600); err != nil {
			t.Fatalf("failed to write junk file: %v", err)
		}
		if _, err := factory.OpenSession(path, target); err == nil {
			t.Error("OpenSession() error = nil for an unparsable file")
		}
	})

	t.Run("missing candidate", func(t *testing.T) {
		if _, err := factory.OpenSession(filepath.Join(tmpDir, "missing.dll"), target); err == nil {
			t.Error("OpenSession() error = nil for a missing file")
		}
	})
}
