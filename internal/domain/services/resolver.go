package services

import (
	"bytes"
	"encoding/binary"
	"path/filepath"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
	"github.com/ochairo/spyglass/internal/domain/interfaces/gateways"
)

// clrDebugResourcePath addresses the legacy debug-info resource record
// embedded in Windows runtime modules.
var clrDebugResourcePath = []string{"RCData", "CLRDEBUGINFO"}

// clrDebugInfoRecord is the fixed binary layout behind that resource.
type clrDebugInfoRecord struct {
	Version      uint32
	Signature    [16]byte
	DacTimeStamp int32
	DacSize      int32
	DbiTimeStamp int32
	DbiSize      int32
}

// ArtifactResolver detects a managed runtime inside a target and constructs
// the priority-ordered, deduplicated list of support-library candidates for
// it. Every probe on the way is best-effort: a parse or file-system failure
// narrows the candidate list, it never aborts resolution.
type ArtifactResolver struct {
	hostPlatform entities.Platform
	hostArch     entities.Architecture
	prober       gateways.ImageProber
	log          interfaces.Logger
}

// NewArtifactResolver creates a resolver for the current host.
func NewArtifactResolver(prober gateways.ImageProber, log interfaces.Logger) *ArtifactResolver {
	return NewArtifactResolverForHost(entities.HostPlatform(), entities.HostArchitecture(), prober, log)
}

// NewArtifactResolverForHost creates a resolver for an explicit host
// platform and architecture. Candidate construction depends on the host, so
// pinning it keeps the pipeline deterministic under test.
func NewArtifactResolverForHost(hostPlatform entities.Platform, hostArch entities.Architecture, prober gateways.ImageProber, log interfaces.Logger) *ArtifactResolver {
	if log == nil {
		log = &interfaces.NoOpLogger{}
	}
	return &ArtifactResolver{
		hostPlatform: hostPlatform,
		hostArch:     hostArch,
		prober:       prober,
		log:          log,
	}
}

// resolution carries the facts gathered about one runtime module through the
// candidate pipeline. front holds elevated candidates, back the rest; the
// final list is front followed by back, deduplicated once.
type resolution struct {
	target         interfaces.DataTarget
	module         gateways.LoadedModule
	flavor         entities.RuntimeFlavor
	targetPlatform entities.Platform
	targetArch     entities.Architecture
	version        entities.Version
	identity       entities.BinaryIdentity
	singleFile     bool
	record         runtimeInfoRecord

	front []entities.DebugArtifactDescriptor
	back  []entities.DebugArtifactDescriptor
}

// Resolve inspects one loaded module and, if it is a managed runtime module,
// returns its immutable descriptor with the ordered candidate list. The
// returned bool is false when the module is not a recognized runtime.
func (r *ArtifactResolver) Resolve(target interfaces.DataTarget, module gateways.LoadedModule) (*entities.RuntimeDescriptor, bool) {
	flavor, ok := DetectFlavor(moduleFileName(module.FilePath()))
	if !ok {
		return nil, false
	}

	res := &resolution{
		target:         target,
		module:         module,
		flavor:         flavor,
		targetPlatform: target.TargetPlatform(),
		targetArch:     target.TargetArchitecture(),
	}
	r.collectFacts(res)
	r.log.Debug("detected managed runtime",
		interfaces.F("module", module.FilePath()),
		interfaces.F("flavor", flavor.String()),
		interfaces.F("version", res.version.String()),
		interfaces.F("single_file", res.singleFile))

	// Ordered pipeline of candidate producers; order is the priority contract.
	r.embeddedRecordCandidates(res)
	r.longFormCandidate(res)
	r.shortFormCandidates(res)
	r.resourceRecordCandidates(res)

	all := make([]entities.DebugArtifactDescriptor, 0, len(res.front)+len(res.back))
	all = append(all, res.front...)
	all = append(all, res.back...)

	return &entities.RuntimeDescriptor{
		Flavor:     flavor,
		Version:    res.version,
		SingleFile: res.singleFile,
		Identity:   res.identity,
		ModulePath: module.FilePath(),
		ModuleBase: module.BaseAddress(),
		Artifacts:  entities.DedupDescriptors(all),
	}, true
}

// collectFacts settles the hosting model, version, and own identity of the
// runtime. Single-file hosting applies when the target is non-Windows or the
// module is a Windows program rather than a library; it is confirmed by the
// marker export pointing at a valid record.
func (r *ArtifactResolver) collectFacts(res *resolution) {
	if res.targetPlatform != entities.PlatformWindows || res.module.IsExecutable() {
		if addr, ok := res.module.ExportAddress(RuntimeInfoExport); ok {
			if rec, valid := readRuntimeInfoRecord(res.target, addr); valid {
				res.singleFile = true
				res.record = rec
			}
		}
	}
	if res.singleFile {
		// The module is the application's own executable; its version says
		// nothing about the runtime, so the version stays the zero-version.
		res.identity = parseModuleIndex(res.record.runtimeIndex, res.targetPlatform)
		return
	}
	res.version = res.module.Version()
	if res.targetPlatform == entities.PlatformWindows {
		if ts, size, ok := res.module.PEIdentity(); ok {
			res.identity = entities.PEIdentity(ts, size)
		}
		return
	}
	res.identity = entities.BuildIDIdentity(res.module.BuildID())
}

// embeddedRecordCandidates emits one data-access and one debug-interface
// candidate from the single-file marker record, each only when its embedded
// identity fields are populated.
func (r *ArtifactResolver) embeddedRecordCandidates(res *resolution) {
	if !res.singleFile {
		return
	}
	if id := parseModuleIndex(res.record.dacIndex, res.targetPlatform); !id.IsEmpty() {
		if name := DataAccessFileName(res.flavor, res.targetPlatform); name != "" {
			res.back = append(res.back, entities.DebugArtifactDescriptor{
				Kind:         entities.KindDataAccess,
				FileName:     name,
				Architecture: res.targetArch,
				Platform:     res.targetPlatform,
				Identity:     id,
			})
		}
	}
	if id := parseModuleIndex(res.record.dbiIndex, res.targetPlatform); !id.IsEmpty() {
		if name := DebugInterfaceFileName(res.flavor, res.targetPlatform); name != "" {
			res.back = append(res.back, entities.DebugArtifactDescriptor{
				Kind:         entities.KindDebugInterface,
				FileName:     name,
				Architecture: res.targetArch,
				Platform:     res.targetPlatform,
				Identity:     id,
			})
		}
	}
}

// longFormCandidate emits the versioned host-architecture name under which a
// host-native copy of the matching data-access library would be published.
// Applies only to Windows targets with a known version.
func (r *ArtifactResolver) longFormCandidate(res *resolution) {
	if res.targetPlatform != entities.PlatformWindows || res.version.Major == 0 {
		return
	}
	res.back = append(res.back, entities.DebugArtifactDescriptor{
		Kind:         entities.KindDataAccess,
		FileName:     longFormDataAccessName(res.flavor, r.hostArch, res.targetArch, res.version),
		Architecture: r.hostArch,
		Platform:     entities.PlatformWindows,
		Identity:     res.identity,
	})
}

// shortFormCandidates emits the plain platform name of the data-access
// library. Same-OS, a confirmed local install elevates a full-path candidate
// to the very front of the list; cross-OS, only the target-platform name is
// emitted, plus a Windows-named counterpart when debugging Linux or macOS
// targets from Windows (the only supported cross-OS direction).
func (r *ArtifactResolver) shortFormCandidates(res *resolution) {
	dacName := DataAccessFileName(res.flavor, res.targetPlatform)
	if dacName == "" {
		return
	}

	if r.hostPlatform == res.targetPlatform {
		if local := r.probeLocalInstall(res, dacName); local != "" {
			r.log.Debug("confirmed local runtime install",
				interfaces.F("dac", local))
			res.front = append(res.front, r.shortFormVariants(res, local)...)
			return
		}
		res.back = append(res.back, r.shortFormVariants(res, dacName)...)
		return
	}

	if !res.identity.IsEmpty() {
		res.back = append(res.back, entities.DebugArtifactDescriptor{
			Kind:         entities.KindDataAccess,
			FileName:     dacName,
			Architecture: res.targetArch,
			Platform:     res.targetPlatform,
			Identity:     res.identity,
		})
	}
	if r.hostPlatform == entities.PlatformWindows &&
		(res.targetPlatform == entities.PlatformLinux || res.targetPlatform == entities.PlatformMacOS) {
		res.back = append(res.back, entities.DebugArtifactDescriptor{
			Kind:         entities.KindDataAccess,
			FileName:     DataAccessFileName(res.flavor, entities.PlatformWindows),
			Architecture: res.targetArch,
			Platform:     entities.PlatformWindows,
			Identity:     res.identity,
		})
	}
}

// shortFormVariants builds the short-form descriptor for each identity form
// known for the runtime: its primary identity, plus a build-id variant when
// the module carries one the primary form does not already express.
func (r *ArtifactResolver) shortFormVariants(res *resolution, fileName string) []entities.DebugArtifactDescriptor {
	var out []entities.DebugArtifactDescriptor
	if !res.identity.IsEmpty() {
		out = append(out, entities.DebugArtifactDescriptor{
			Kind:         entities.KindDataAccess,
			FileName:     fileName,
			Architecture: res.targetArch,
			Platform:     res.targetPlatform,
			Identity:     res.identity,
		})
	}
	if bid := res.module.BuildID(); len(bid) > 0 && !res.identity.HasBuildID() {
		out = append(out, entities.DebugArtifactDescriptor{
			Kind:         entities.KindDataAccess,
			FileName:     fileName,
			Architecture: res.targetArch,
			Platform:     res.targetPlatform,
			Identity:     entities.BuildIDIdentity(bid),
		})
	}
	return out
}

// probeLocalInstall checks whether the runtime module's own recorded path
// exists on the local disk with the target's exact identity. Only the
// module's directory is probed; a match means the install that produced the
// target is present here, so the co-located data-access library is trusted.
func (r *ArtifactResolver) probeLocalInstall(res *resolution, dacName string) string {
	path := res.module.FilePath()
	if path == "" || res.identity.IsEmpty() || !r.prober.FileExists(path) {
		return ""
	}
	img, err := r.prober.OpenImage(path)
	if err != nil || !matchesIdentity(img, res.identity) {
		return ""
	}
	dacPath := filepath.Join(filepath.Dir(path), dacName)
	if !r.prober.FileExists(dacPath) {
		return ""
	}
	return dacPath
}

func matchesIdentity(img gateways.ModuleImage, id entities.BinaryIdentity) bool {
	switch {
	case id.HasPESignature():
		ts, size, ok := img.PEIdentity()
		return ok && ts == id.TimeStamp() && size == id.FileSize()
	case id.HasBuildID():
		return bytes.Equal(img.BuildID(), id.BuildID())
	default:
		return false
	}
}

// resourceRecordCandidates emits candidates from the legacy embedded debug
// resource, lowest priority. Only the zero-version form of the record carries
// usable timestamp/size fields.
func (r *ArtifactResolver) resourceRecordCandidates(res *resolution) {
	data, ok := res.module.ResourceData(clrDebugResourcePath...)
	if !ok {
		return
	}
	var rec clrDebugInfoRecord
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &rec); err != nil {
		return
	}
	if rec.Version != 0 {
		return
	}
	if rec.DacTimeStamp != 0 && rec.DacSize != 0 {
		res.back = append(res.back, entities.DebugArtifactDescriptor{
			Kind:         entities.KindDataAccess,
			FileName:     DataAccessFileName(res.flavor, entities.PlatformWindows),
			Architecture: res.targetArch,
			Platform:     entities.PlatformWindows,
			Identity:     entities.PEIdentity(uint32(rec.DacTimeStamp), uint32(rec.DacSize)),
		})
	}
	if rec.DbiTimeStamp != 0 && rec.DbiSize != 0 {
		res.back = append(res.back, entities.DebugArtifactDescriptor{
			Kind:         entities.KindDebugInterface,
			FileName:     DebugInterfaceFileName(res.flavor, entities.PlatformWindows),
			Architecture: res.targetArch,
			Platform:     entities.PlatformWindows,
			Identity:     entities.PEIdentity(uint32(rec.DbiTimeStamp), uint32(rec.DbiSize)),
		})
	}
}
