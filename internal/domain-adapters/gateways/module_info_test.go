package gateways

import (
	"testing"

	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// TestRuntimeModuleInfo tests the facade over a module mapped in a target
func TestRuntimeModuleInfo(t *testing.T) {
	const base = 0x7ff800000000
	data := buildTestPE(true, true)
	target := &sliceTarget{base: base, data: data}

	mod := NewRuntimeModuleInfo(target, interfaces.TargetModule{
		Path: `C:\Program Files\dotnet\coreclr.dll`,
		Base: base,
		Size: uint64(len(data)),
	})

	if got := mod.FilePath(); got != `C:\Program Files\dotnet\coreclr.dll` {
		t.Errorf("FilePath() = %q", got)
	}
	if got := mod.BaseAddress(); got != base {
		t.Errorf("BaseAddress() = %#x, want %#x", got, uint64(base))
	}
	if !mod.Parsed() {
		t.Fatal("Parsed() = false over a mapped image")
	}
	ts, size, ok := mod.PEIdentity()
	if !ok || ts != testPETimeStamp || size != testPESizeOfImage {
		t.Errorf("PEIdentity() = %x/%x/%v, want %x/%x/true", ts, size, ok, testPETimeStamp, testPESizeOfImage)
	}
	if addr, ok := mod.ExportAddress("DotNetRuntimeInfo"); !ok || addr <= base {
		t.Errorf("ExportAddress() = %#x, %v, want a rebased address", addr, ok)
	}
	if mod.Image() == nil {
		t.Error("Image() = nil")
	}

	t.Run("opaque module", func(t *testing.T) {
		junk := &sliceTarget{base: 0x1000, data: make([]byte, 256)}
		mod := NewRuntimeModuleInfo(junk, interfaces.TargetModule{Path: "/tmp/anon", Base: 0x1000, Size: 256})
		if mod.Parsed() {
			t.Error("Parsed() = true for unmappable bytes")
		}
		if _, _, ok := mod.PEIdentity(); ok {
			t.Error("PEIdentity() ok = true for an opaque module")
		}
		if mod.BuildID() != nil {
			t.Error("BuildID() != nil for an opaque module")
		}
	})
}
