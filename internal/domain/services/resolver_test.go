package services

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces/gateways"
)

// fakeModule is a scripted loaded module.
type fakeModule struct {
	path       string
	base       uint64
	parsed     bool
	version    entities.Version
	peTS       uint32
	peSize     uint32
	peOK       bool
	buildID    []byte
	managed    bool
	executable bool
	exports    map[string]uint64
	resources  map[string][]byte
	symbol     entities.SymbolReference
	hasSymbol  bool
}

func (m *fakeModule) Parsed() bool                                 { return m.parsed }
func (m *fakeModule) Version() entities.Version                    { return m.version }
func (m *fakeModule) PEIdentity() (uint32, uint32, bool)           { return m.peTS, m.peSize, m.peOK }
func (m *fakeModule) BuildID() []byte                              { return m.buildID }
func (m *fakeModule) IsManaged() bool                              { return m.managed }
func (m *fakeModule) IsExecutable() bool                           { return m.executable }
func (m *fakeModule) SymbolFile() (entities.SymbolReference, bool) { return m.symbol, m.hasSymbol }
func (m *fakeModule) FilePath() string                             { return m.path }
func (m *fakeModule) BaseAddress() uint64                          { return m.base }

func (m *fakeModule) ExportAddress(name string) (uint64, bool) {
	addr, ok := m.exports[name]
	return addr, ok
}

func (m *fakeModule) ResourceData(path ...string) ([]byte, bool) {
	data, ok := m.resources[strings.Join(path, "/")]
	return data, ok
}

// fakeProber serves scripted images for scripted paths.
type fakeProber struct {
	images map[string]gateways.ModuleImage
	exists map[string]bool
}

func (p *fakeProber) OpenImage(path string) (gateways.ModuleImage, error) {
	if img, ok := p.images[path]; ok {
		return img, nil
	}
	return nil, errors.New("no such image")
}

func (p *fakeProber) FileExists(path string) bool {
	if p.exists[path] {
		return true
	}
	_, ok := p.images[path]
	return ok
}

func clrDebugInfoBytes(version uint32, dacTS, dacSize, dbiTS, dbiSize int32) []byte {
	buf := make([]byte, 36)
	binary.LittleEndian.PutUint32(buf[0:4], version)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(dacTS))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(dacSize))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(dbiTS))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(dbiSize))
	return buf
}

// TestResolveNonRuntimeModule tests that unrelated modules are skipped
func TestResolveNonRuntimeModule(t *testing.T) {
	r := NewArtifactResolverForHost(entities.PlatformLinux, entities.ArchAMD64, &fakeProber{}, nil)
	target := &fakeTarget{platform: entities.PlatformLinux, arch: entities.ArchAMD64}
	mod := &fakeModule{path: "/usr/lib/libc.so.6", parsed: true}

	if _, ok := r.Resolve(target, mod); ok {
		t.Error("Resolve() detected a runtime in libc.so.6")
	}
}

// TestResolveWindowsRuntime tests the traditional Windows candidate pipeline
func TestResolveWindowsRuntime(t *testing.T) {
	version := entities.Version{Major: 8, Minor: 0, Build: 7, Revision: 3}
	mod := &fakeModule{
		path:    `C:\runtime\coreclr.dll`,
		base:    0x7ff800000000,
		parsed:  true,
		version: version,
		peTS:    0x1234, peSize: 0x9A000, peOK: true,
		resources: map[string][]byte{
			"RCData/CLRDEBUGINFO": clrDebugInfoBytes(0, 0x5555, 0x6666, 0x7777, 0x8888),
		},
	}
	target := &fakeTarget{platform: entities.PlatformWindows, arch: entities.ArchAMD64}
	r := NewArtifactResolverForHost(entities.PlatformWindows, entities.ArchAMD64, &fakeProber{}, nil)

	runtime, ok := r.Resolve(target, mod)
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}

	if runtime.Flavor != entities.FlavorCore {
		t.Errorf("Flavor = %v, want core", runtime.Flavor)
	}
	if runtime.SingleFile {
		t.Error("SingleFile = true, want false")
	}
	if runtime.Version != version {
		t.Errorf("Version = %s, want %s", runtime.Version, version)
	}
	if !runtime.Identity.Equal(entities.PEIdentity(0x1234, 0x9A000)) {
		t.Errorf("Identity = %s, want PE 00001234/9a000", runtime.Identity)
	}

	want := []entities.DebugArtifactDescriptor{
		{
			Kind: entities.KindDataAccess, FileName: "mscordaccore_amd64_amd64_8.0.7.03.dll",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformWindows,
			Identity: entities.PEIdentity(0x1234, 0x9A000),
		},
		{
			Kind: entities.KindDataAccess, FileName: "mscordaccore.dll",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformWindows,
			Identity: entities.PEIdentity(0x1234, 0x9A000),
		},
		{
			Kind: entities.KindDataAccess, FileName: "mscordaccore.dll",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformWindows,
			Identity: entities.PEIdentity(0x5555, 0x6666),
		},
		{
			Kind: entities.KindDebugInterface, FileName: "mscordbi.dll",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformWindows,
			Identity: entities.PEIdentity(0x7777, 0x8888),
		},
	}
	assertCandidates(t, runtime.Artifacts, want)
}

// TestResolveSingleFileLinux tests marker-record detection and candidate order
func TestResolveSingleFileLinux(t *testing.T) {
	const markerAddr = 0x500000001000
	runtimeID := []byte{0x11, 0x22, 0x33}
	dacID := []byte{0x44, 0x55}
	dbiID := []byte{0x66, 0x77}

	mod := &fakeModule{
		path:       "/app/libcoreclr.so",
		base:       0x500000000000,
		parsed:     true,
		executable: true,
		version:    entities.Version{Major: 9}, // the app's version, must be ignored
		exports:    map[string]uint64{RuntimeInfoExport: markerAddr},
	}

	target := &fakeTarget{
		platform: entities.PlatformLinux,
		arch:     entities.ArchAMD64,
		memory: map[uint64][]byte{
			markerAddr: buildRuntimeInfo(1,
				buildIDIndex(runtimeID), buildIDIndex(dacID), buildIDIndex(dbiID)),
		},
	}
	r := NewArtifactResolverForHost(entities.PlatformLinux, entities.ArchAMD64, &fakeProber{}, nil)

	runtime, ok := r.Resolve(target, mod)
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	if !runtime.SingleFile {
		t.Fatal("SingleFile = false, want true")
	}
	if !runtime.Version.IsZero() {
		t.Errorf("Version = %s, want zero for single-file hosting", runtime.Version)
	}
	if !runtime.Identity.Equal(entities.BuildIDIdentity(runtimeID)) {
		t.Errorf("Identity = %s, want the record's runtime build-id", runtime.Identity)
	}

	want := []entities.DebugArtifactDescriptor{
		{
			Kind: entities.KindDataAccess, FileName: "libmscordaccore.so",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformLinux,
			Identity: entities.BuildIDIdentity(dacID),
		},
		{
			Kind: entities.KindDebugInterface, FileName: "libmscordbi.so",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformLinux,
			Identity: entities.BuildIDIdentity(dbiID),
		},
		{
			Kind: entities.KindDataAccess, FileName: "libmscordaccore.so",
			Architecture: entities.ArchAMD64, Platform: entities.PlatformLinux,
			Identity: entities.BuildIDIdentity(runtimeID),
		},
	}
	assertCandidates(t, runtime.Artifacts, want)
}

// TestResolveLocalInstallElevation tests that a confirmed local install moves
// the full-path candidate to the front
func TestResolveLocalInstallElevation(t *testing.T) {
	buildID := []byte{0x01, 0x02, 0x03}
	modPath := "/usr/share/dotnet/shared/Microsoft.NETCore.App/8.0.0/libcoreclr.so"
	dacPath := "/usr/share/dotnet/shared/Microsoft.NETCore.App/8.0.0/libmscordaccore.so"

	mod := &fakeModule{
		path:    modPath,
		parsed:  true,
		version: entities.Version{Major: 8},
		buildID: buildID,
	}
	prober := &fakeProber{
		images: map[string]gateways.ModuleImage{
			modPath: &fakeModule{parsed: true, buildID: buildID},
		},
		exists: map[string]bool{dacPath: true},
	}
	target := &fakeTarget{platform: entities.PlatformLinux, arch: entities.ArchAMD64}
	r := NewArtifactResolverForHost(entities.PlatformLinux, entities.ArchAMD64, prober, nil)

	runtime, ok := r.Resolve(target, mod)
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	if len(runtime.Artifacts) == 0 {
		t.Fatal("Resolve() produced no candidates")
	}
	first := runtime.Artifacts[0]
	if first.FileName != dacPath {
		t.Errorf("first candidate = %q, want the elevated full path %q", first.FileName, dacPath)
	}
	if !first.Identity.Equal(entities.BuildIDIdentity(buildID)) {
		t.Errorf("elevated candidate identity = %s, want the runtime build-id", first.Identity)
	}
}

// TestResolveLocalInstallMismatch tests that a stale local install is not elevated
func TestResolveLocalInstallMismatch(t *testing.T) {
	modPath := "/opt/dotnet/libcoreclr.so"
	mod := &fakeModule{path: modPath, parsed: true, buildID: []byte{1}}
	prober := &fakeProber{
		images: map[string]gateways.ModuleImage{
			// Different build on disk than in the target.
			modPath: &fakeModule{parsed: true, buildID: []byte{2}},
		},
		exists: map[string]bool{"/opt/dotnet/libmscordaccore.so": true},
	}
	target := &fakeTarget{platform: entities.PlatformLinux, arch: entities.ArchAMD64}
	r := NewArtifactResolverForHost(entities.PlatformLinux, entities.ArchAMD64, prober, nil)

	runtime, ok := r.Resolve(target, mod)
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	for _, c := range runtime.Artifacts {
		if c.FileName == "/opt/dotnet/libmscordaccore.so" {
			t.Error("stale local install was elevated despite identity mismatch")
		}
	}
}

// TestResolveCrossPlatform tests cross-OS candidate direction rules
func TestResolveCrossPlatform(t *testing.T) {
	buildID := []byte{0x0d, 0x0e}
	mod := &fakeModule{path: "/lib/libcoreclr.so", parsed: true, buildID: buildID}
	target := &fakeTarget{platform: entities.PlatformLinux, arch: entities.ArchAMD64}

	t.Run("windows host inspecting linux target", func(t *testing.T) {
		r := NewArtifactResolverForHost(entities.PlatformWindows, entities.ArchAMD64, &fakeProber{}, nil)
		runtime, ok := r.Resolve(target, mod)
		if !ok {
			t.Fatal("Resolve() ok = false, want true")
		}

		var names []string
		for _, c := range runtime.Artifacts {
			names = append(names, c.FileName+"@"+c.Platform.String())
		}
		wantTarget := "libmscordaccore.so@linux"
		wantHost := "mscordaccore.dll@windows"
		if len(names) != 2 || names[0] != wantTarget || names[1] != wantHost {
			t.Errorf("candidates = %v, want [%s %s]", names, wantTarget, wantHost)
		}
	})

	t.Run("macos host inspecting linux target", func(t *testing.T) {
		r := NewArtifactResolverForHost(entities.PlatformMacOS, entities.ArchARM64, &fakeProber{}, nil)
		runtime, ok := r.Resolve(target, mod)
		if !ok {
			t.Fatal("Resolve() ok = false, want true")
		}
		// No Windows-named counterpart: only host=Windows gets one.
		for _, c := range runtime.Artifacts {
			if c.Platform != entities.PlatformLinux {
				t.Errorf("unexpected %s candidate %q for a macOS host", c.Platform, c.FileName)
			}
		}
	})
}

// TestResolveDeduplicates tests that the final list carries no duplicates
func TestResolveDeduplicates(t *testing.T) {
	// The resource record repeats the module's own PE identity, so the
	// short-form candidate and the resource candidate collide.
	mod := &fakeModule{
		path:   `C:\rt\coreclr.dll`,
		parsed: true,
		peTS:   0x10, peSize: 0x20, peOK: true,
		resources: map[string][]byte{
			"RCData/CLRDEBUGINFO": clrDebugInfoBytes(0, 0x10, 0x20, 0, 0),
		},
	}
	target := &fakeTarget{platform: entities.PlatformWindows, arch: entities.ArchAMD64}
	r := NewArtifactResolverForHost(entities.PlatformWindows, entities.ArchAMD64, &fakeProber{}, nil)

	runtime, ok := r.Resolve(target, mod)
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	seen := make(map[string]bool)
	for _, c := range runtime.Artifacts {
		key := c.Kind.String() + c.FileName + c.Identity.String()
		if seen[key] {
			t.Errorf("duplicate candidate %s %s", c.FileName, c.Identity)
		}
		seen[key] = true
	}
}

func assertCandidates(t *testing.T, got, want []entities.DebugArtifactDescriptor) {
	t.Helper()
	if len(got) != len(want) {
		for i, c := range got {
			t.Logf("got[%d] = [%s] %s %s/%s %s", i, c.Kind, c.FileName, c.Platform, c.Architecture, c.Identity)
		}
		t.Fatalf("candidate count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("candidate %d = [%s] %s %s/%s %s, want [%s] %s %s/%s %s",
				i,
				got[i].Kind, got[i].FileName, got[i].Platform, got[i].Architecture, got[i].Identity,
				want[i].Kind, want[i].FileName, want[i].Platform, want[i].Architecture, want[i].Identity)
		}
	}
}
