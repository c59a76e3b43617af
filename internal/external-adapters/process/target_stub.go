//go:build !linux

// Package process exposes a running process as an inspectable data target.
package process

import (
	"fmt"
	"runtime"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// Target is the live-process data target. Only the Linux procfs
// implementation exists today.
type Target struct{}

// Attach reports that live-process inspection is unavailable on this OS.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func Attach(_ int32) (*Target, error) {
	return nil, fmt.Errorf("live-process inspection is not supported on %s", runtime.GOOS)
}

// Close releases nothing on this OS.
func (t *Target) Close() error { return nil }

// TargetPlatform reports the operating system of the target.
func (t *Target) TargetPlatform() entities.Platform { return entities.HostPlatform() }

// TargetArchitecture reports the processor architecture of the target.
func (t *Target) TargetArchitecture() entities.Architecture { return entities.HostArchitecture() }

// PointerSize reports the target pointer width in bytes.
func (t *Target) PointerSize() int { return entities.HostArchitecture().PointerSize() }

// Name always fails on this OS.
func (t *Target) Name() (string, error) {
	return "", fmt.Errorf("live-process inspection is not supported on %s", runtime.GOOS)
}

// ExecutablePath always fails on this OS.
func (t *Target) ExecutablePath() (string, error) {
	return "", fmt.Errorf("live-process inspection is not supported on %s", runtime.GOOS)
}

// ReadMemory always fails on this OS.
func (t *Target) ReadMemory(addr uint64, _ []byte) (int, error) {
	return 0, fmt.Errorf("cannot read %#x: live-process inspection is not supported on %s", addr, runtime.GOOS)
}

// Modules always fails on this OS.
func (t *Target) Modules() ([]interfaces.TargetModule, error) {
	return nil, fmt.Errorf("live-process inspection is not supported on %s", runtime.GOOS)
}
