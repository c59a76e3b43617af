package interfaces

import "github.com/ochairo/spyglass/internal/domain/entities"

// FileLocator turns an artifact descriptor into an actual local file path.
// It is a pure lookup collaborator: implementations may probe directories,
// caches, or symbol servers, but they never mutate the descriptor and they
// report "not found" rather than failing.
type FileLocator interface {
	// FindByIdentity locates a file by the Windows timestamp+size convention.
	FindByIdentity(fileName string, timeStamp, fileSize uint32) (string, bool)

	// FindByBuildID locates a file by ELF/Mach-O build-id. The platform
	// selects the store layout used for the lookup; the kind selects between
	// data-access and debug-interface key forms.
	FindByBuildID(fileName string, kind entities.ArtifactKind, buildID []byte, platform entities.Platform) (string, bool)
}
