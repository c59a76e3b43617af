package entities

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// BinaryIdentity identifies one concrete binary image. Exactly one of the two
// identity schemes is populated: a PE timestamp+size pair (Windows
// convention) or a build-id byte sequence (ELF/Mach-O convention). The
// constructors below are the only way to build one, which keeps the two
// schemes mutually exclusive.
type BinaryIdentity struct {
	timeStamp uint32
	fileSize  uint32
	buildID   []byte
}

// PEIdentity builds an identity from PE header properties.
func PEIdentity(timeStamp, fileSize uint32) BinaryIdentity {
	return BinaryIdentity{timeStamp: timeStamp, fileSize: fileSize}
}

// BuildIDIdentity builds an identity from an ELF or Mach-O build-id. The
// slice is copied; an empty or nil id yields an empty identity.
func BuildIDIdentity(buildID []byte) BinaryIdentity {
	return BinaryIdentity{buildID: bytes.Clone(buildID)}
}

// TimeStamp returns the PE link timestamp, zero for build-id identities.
func (id BinaryIdentity) TimeStamp() uint32 { return id.timeStamp }

// FileSize returns the PE SizeOfImage, zero for build-id identities.
func (id BinaryIdentity) FileSize() uint32 { return id.fileSize }

// BuildID returns the build-id bytes. Callers must not mutate the result.
func (id BinaryIdentity) BuildID() []byte { return id.buildID }

// HasPESignature reports whether a non-zero timestamp+size pair is populated.
func (id BinaryIdentity) HasPESignature() bool {
	return len(id.buildID) == 0 && (id.timeStamp != 0 || id.fileSize != 0)
}

// HasBuildID reports whether a non-empty build-id is populated.
func (id BinaryIdentity) HasBuildID() bool {
	return len(id.buildID) > 0
}

// IsEmpty reports whether neither identity scheme is populated.
func (id BinaryIdentity) IsEmpty() bool {
	return !id.HasPESignature() && !id.HasBuildID()
}

// Equal reports full-field equality.
func (id BinaryIdentity) Equal(other BinaryIdentity) bool {
	return id.timeStamp == other.timeStamp &&
		id.fileSize == other.fileSize &&
		bytes.Equal(id.buildID, other.buildID)
}

// String renders the populated identity scheme for logs and errors.
func (id BinaryIdentity) String() string {
	if id.HasBuildID() {
		return hex.EncodeToString(id.buildID)
	}
	if id.HasPESignature() {
		return fmt.Sprintf("%08X%x", id.timeStamp, id.fileSize)
	}
	return "none"
}
