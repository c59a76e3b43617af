package entities

import "fmt"

// Version is a four-part file version. The zero value means the version is
// genuinely unknown (single-file hosting, or an image without a version
// resource) and is used in place of "no version".
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// IsZero reports whether no version information is known.
func (v Version) IsZero() bool {
	return v == Version{}
}

// String formats the version in the conventional dotted form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}
