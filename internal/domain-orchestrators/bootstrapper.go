// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"path/filepath"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
	"github.com/ochairo/spyglass/internal/domain/interfaces/gateways"
)

// RuntimeBootstrapper turns a resolved runtime descriptor into a live
// inspection session: it locates an actual file for one of the candidate
// descriptors, validates it, and delegates to the session factory to open it.
type RuntimeBootstrapper struct {
	target       interfaces.DataTarget
	runtime      *entities.RuntimeDescriptor
	locator      interfaces.FileLocator
	sessions     interfaces.SessionFactory
	prober       gateways.ImageProber
	hostPlatform entities.Platform
	hostArch     entities.Architecture
	log          interfaces.Logger
}

// NewRuntimeBootstrapper creates a bootstrapper for the current host.
func NewRuntimeBootstrapper(
	target interfaces.DataTarget,
	runtime *entities.RuntimeDescriptor,
	locator interfaces.FileLocator,
	sessions interfaces.SessionFactory,
	prober gateways.ImageProber,
	log interfaces.Logger,
) *RuntimeBootstrapper {
	return NewRuntimeBootstrapperForHost(
		entities.HostPlatform(), entities.HostArchitecture(),
		target, runtime, locator, sessions, prober, log)
}

// NewRuntimeBootstrapperForHost creates a bootstrapper for an explicit host
// platform and architecture.
func NewRuntimeBootstrapperForHost(
	hostPlatform entities.Platform,
	hostArch entities.Architecture,
	target interfaces.DataTarget,
	runtime *entities.RuntimeDescriptor,
	locator interfaces.FileLocator,
	sessions interfaces.SessionFactory,
	prober gateways.ImageProber,
	log interfaces.Logger,
) *RuntimeBootstrapper {
	if log == nil {
		log = &interfaces.NoOpLogger{}
	}
	return &RuntimeBootstrapper{
		target:       target,
		runtime:      runtime,
		locator:      locator,
		sessions:     sessions,
		prober:       prober,
		hostPlatform: hostPlatform,
		hostArch:     hostArch,
		log:          log,
	}
}

// FromPath constructs a session from an explicit data-access library path.
// Unless skipVersionCheck is set, the file's four-part version must equal the
// runtime's version; a divergence fails with VersionMismatchError carrying
// both versions. A zero runtime version means the version is unknown and
// nothing can mismatch.
func (b *RuntimeBootstrapper) FromPath(path string, skipVersionCheck bool) (interfaces.InspectionSession, error) {
	if !b.prober.FileExists(path) {
		return nil, &entities.NotFoundError{Path: path}
	}
	if !skipVersionCheck && !b.runtime.Version.IsZero() {
		img, err := b.prober.OpenImage(path)
		if err != nil {
			return nil, &entities.ConstructionError{Path: path, Err: err}
		}
		if v := img.Version(); v != b.runtime.Version {
			return nil, &entities.VersionMismatchError{
				Path:     path,
				Expected: b.runtime.Version,
				Found:    v,
			}
		}
	}
	session, err := b.sessions.OpenSession(path, b.target)
	if err != nil {
		return nil, &entities.ConstructionError{Path: path, Err: err}
	}
	b.log.Info("inspection session constructed",
		interfaces.F("dac", path),
		interfaces.F("runtime_version", b.runtime.Version.String()))
	return session, nil
}

// Automatic walks the resolver's candidate list in priority order, restricted
// to data-access candidates loadable on this host, locates each through the
// external locator, and constructs a session from the first one that works.
// Only the first construction failure is retained; it is re-raised when every
// candidate is exhausted. When no candidate was even eligible for this host,
// the failure is PlatformNotSupportedError rather than NotFoundError.
func (b *RuntimeBootstrapper) Automatic() (interfaces.InspectionSession, error) {
	hostPtr := b.hostArch.PointerSize()
	if targetPtr := b.target.PointerSize(); hostPtr != targetPtr {
		return nil, &entities.PointerSizeMismatchError{HostSize: hostPtr, TargetSize: targetPtr}
	}

	var firstErr error
	eligible := 0
	for _, c := range b.runtime.Artifacts {
		if c.Kind != entities.KindDataAccess ||
			c.Platform != b.hostPlatform ||
			c.Architecture != b.hostArch {
			continue
		}
		eligible++

		path := b.resolveCandidate(c)
		if path == "" || !b.prober.FileExists(path) {
			continue
		}
		// Identity was confirmed by the resolution step, so the version
		// check is redundant here.
		session, err := b.FromPath(path, true)
		if err == nil {
			return session, nil
		}
		b.log.Warn("candidate failed, trying next",
			interfaces.F("path", path),
			interfaces.F("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}

	if eligible == 0 {
		return nil, &entities.PlatformNotSupportedError{
			Platform:     b.hostPlatform,
			Architecture: b.hostArch,
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, &entities.NotFoundError{}
}

// resolveCandidate turns one descriptor into a local path. A full path was
// already identity-verified when the descriptor was built and is used
// directly; everything else goes through the external locator, by build-id
// when the candidate carries one, by timestamp+size otherwise (a Windows-only
// convention).
func (b *RuntimeBootstrapper) resolveCandidate(c entities.DebugArtifactDescriptor) string {
	if filepath.IsAbs(c.FileName) {
		return c.FileName
	}
	if b.locator == nil {
		return ""
	}
	if c.Identity.HasBuildID() {
		// Build-id lookups exist only for the three known store layouts.
		switch c.Platform {
		case entities.PlatformWindows, entities.PlatformLinux, entities.PlatformMacOS:
			if p, ok := b.locator.FindByBuildID(c.FileName, c.Kind, c.Identity.BuildID(), c.Platform); ok {
				return p
			}
		}
		return ""
	}
	if c.Platform == entities.PlatformWindows && c.Identity.HasPESignature() {
		if p, ok := b.locator.FindByIdentity(c.FileName, c.Identity.TimeStamp(), c.Identity.FileSize()); ok {
			return p
		}
	}
	return ""
}
