package entities

// RuntimeFlavor identifies one of the two historical implementations of the
// managed runtime, which differ in module and support-library naming.
type RuntimeFlavor int

// Runtime flavors.
const (
	FlavorDesktop RuntimeFlavor = iota
	FlavorCore
)

// String returns a human-readable flavor name.
func (f RuntimeFlavor) String() string {
	switch f {
	case FlavorDesktop:
		return "desktop"
	case FlavorCore:
		return "core"
	default:
		return "unknown"
	}
}

// RuntimeDescriptor aggregates everything known about one managed runtime
// detected inside a target. It is created once when the runtime module is
// first recognized and is immutable afterwards; the Artifacts list is fully
// deduplicated and its order is the priority order consumers must respect
// when probing for a usable support library.
type RuntimeDescriptor struct {
	Flavor     RuntimeFlavor
	Version    Version
	SingleFile bool
	Identity   BinaryIdentity
	ModulePath string
	ModuleBase uint64
	Artifacts  []DebugArtifactDescriptor
}
