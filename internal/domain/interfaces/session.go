package interfaces

// InspectionSession is a live runtime-inspection session built on top of a
// loaded data-access library. Walking the native interface it exposes is an
// external concern; the domain only creates and hands out sessions.
type InspectionSession interface {
	// DataAccessPath returns the path of the library the session was built from.
	DataAccessPath() string

	// Close releases the native library and all session resources.
	Close() error
}

// SessionFactory opens a data-access library and builds an inspection
// session from it. Implementations fail when the native interface cannot be
// obtained from the file.
type SessionFactory interface {
	OpenSession(path string, target DataTarget) (InspectionSession, error)
}
