package gateways

import (
	"fmt"

	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// probeSession is a session over a validated data-access library path.
type probeSession struct {
	path string
}

func (s *probeSession) DataAccessPath() string { return s.path }

func (s *probeSession) Close() error { return nil }

// ProbeSessionFactory builds sessions by confirming a candidate parses as a
// binary image for the host, without binding its native entry points. It
// backs dry-run resolution; embedders supply their own factory to load the
// library for real.
type ProbeSessionFactory struct{}

// NewProbeSessionFactory creates a probe session factory
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewProbeSessionFactory() *ProbeSessionFactory {
	return &ProbeSessionFactory{}
}

// OpenSession validates the file at path and wraps it in a session.
func (*ProbeSessionFactory) OpenSession(path string, _ interfaces.DataTarget) (interfaces.InspectionSession, error) {
	prober := NewFileProber()
	img, err := prober.OpenImage(path)
	if err != nil {
		return nil, err
	}
	if !img.Parsed() {
		return nil, fmt.Errorf("unrecognized binary format: %s", path)
	}
	return &probeSession{path: path}, nil
}
