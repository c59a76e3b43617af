//go:build linux

// Package process exposes a running process as an inspectable data target.
package process

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/ochairo/spyglass/internal/domain/entities"
	"github.com/ochairo/spyglass/internal/domain/interfaces"
)

// Target reads memory and module mappings from a live local process via
// procfs. Attaching requires the same privileges ptrace would.
type Target struct {
	pid  int32
	mem  *os.File
	proc *process.Process
}

// Attach opens the address space of a running process
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func Attach(pid int32) (*Target, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("process %d not found: %w", pid, err)
	}

	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process memory: %w", err)
	}
	return &Target{pid: pid, mem: mem, proc: proc}, nil
}

// Close releases the process memory handle.
func (t *Target) Close() error {
	return t.mem.Close()
}

// Name reports the short name of the attached process.
func (t *Target) Name() (string, error) {
	name, err := t.proc.Name()
	if err != nil {
		return "", fmt.Errorf("failed to read process name: %w", err)
	}
	return name, nil
}

// ExecutablePath reports the path of the attached process's executable.
func (t *Target) ExecutablePath() (string, error) {
	exe, err := t.proc.Exe()
	if err != nil {
		return "", fmt.Errorf("failed to read executable path: %w", err)
	}
	return exe, nil
}

// TargetPlatform reports the operating system of the target.
func (t *Target) TargetPlatform() entities.Platform {
	return entities.PlatformLinux
}

// TargetArchitecture reports the processor architecture of the target.
// A local process shares the host architecture.
func (t *Target) TargetArchitecture() entities.Architecture {
	return entities.HostArchitecture()
}

// PointerSize reports the target pointer width in bytes.
func (t *Target) PointerSize() int {
	return entities.HostArchitecture().PointerSize()
}

// ReadMemory reads len(buf) bytes from the process address space.
func (t *Target) ReadMemory(addr uint64, buf []byte) (int, error) {
	n, err := t.mem.ReadAt(buf, int64(addr))
	if n > 0 {
		return n, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read process memory at %#x: %w", addr, err)
	}
	return 0, nil
}

// Modules lists the files mapped into the process, coalescing the
// per-permission mappings from /proc/pid/maps into one module per path.
func (t *Target) Modules() ([]interfaces.TargetModule, error) {
	//nolint:gosec // G304: procfs path is built from the attached pid
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", t.pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process maps: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	type span struct {
		base uint64
		end  uint64
	}
	byPath := make(map[string]*span)
	var order []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 || !strings.HasPrefix(fields[5], "/") {
			continue
		}
		path := fields[5]

		rng := strings.SplitN(fields[0], "-", 2)
		if len(rng) != 2 {
			continue
		}
		start, err := strconv.ParseUint(rng[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(rng[1], 16, 64)
		if err != nil {
			continue
		}
		fileOff, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			continue
		}

		s, ok := byPath[path]
		if !ok {
			s = &span{base: start, end: end}
			byPath[path] = s
			order = append(order, path)
			continue
		}
		if fileOff == 0 || start < s.base {
			s.base = start
		}
		if end > s.end {
			s.end = end
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read process maps: %w", err)
	}

	modules := make([]interfaces.TargetModule, 0, len(order))
	for _, path := range order {
		s := byPath[path]
		modules = append(modules, interfaces.TargetModule{
			Path: path,
			Base: s.base,
			Size: s.end - s.base,
		})
	}
	return modules, nil
}
