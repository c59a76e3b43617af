package entities

import "strings"

// ArtifactKind distinguishes the two support-library roles a descriptor can
// refer to.
type ArtifactKind int

// Artifact kinds.
const (
	// KindDataAccess is the library exposing the structured query interface
	// over the runtime's internal memory layout.
	KindDataAccess ArtifactKind = iota
	// KindDebugInterface is the library used for live debugger attach.
	KindDebugInterface
)

// String returns a human-readable kind name.
func (k ArtifactKind) String() string {
	switch k {
	case KindDataAccess:
		return "dac"
	case KindDebugInterface:
		return "dbi"
	default:
		return "unknown"
	}
}

// DebugArtifactDescriptor describes one candidate support library: its role,
// file name (possibly a full local path when a candidate has already been
// verified on disk), target architecture, platform naming convention, and the
// identity a locator should match when resolving it. Descriptors are value
// types; two descriptors are duplicates iff every field is equal.
type DebugArtifactDescriptor struct {
	Kind         ArtifactKind
	FileName     string
	Architecture Architecture
	Platform     Platform
	Identity     BinaryIdentity
}

// Equal reports full-field equality.
func (d DebugArtifactDescriptor) Equal(other DebugArtifactDescriptor) bool {
	return d.Kind == other.Kind &&
		d.FileName == other.FileName &&
		d.Architecture == other.Architecture &&
		d.Platform == other.Platform &&
		d.Identity.Equal(other.Identity)
}

// key folds every field into a string usable as a map key for deduplication.
func (d DebugArtifactDescriptor) key() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	b.WriteByte('|')
	b.WriteString(d.FileName)
	b.WriteByte('|')
	b.WriteString(d.Architecture.String())
	b.WriteByte('|')
	b.WriteString(d.Platform.String())
	b.WriteByte('|')
	b.WriteString(d.Identity.String())
	return b.String()
}

// DedupDescriptors collapses duplicate descriptors, keeping the first
// occurrence of each. Relative order is preserved: the position of a
// descriptor in the list is a priority signal for consumers, so the result of
// deduplicating twice is identical to deduplicating once.
func DedupDescriptors(list []DebugArtifactDescriptor) []DebugArtifactDescriptor {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]DebugArtifactDescriptor, 0, len(list))
	for _, d := range list {
		k := d.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
