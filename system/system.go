// Package system defines the external capabilities the service controller
// is injected with: process execution, filesystem access and network
// interface enumeration. Tests substitute fakes; gosystem implements them
// against the operating system.
package system

import (
	"context"
	"io/fs"
	"time"
)

// Result is the outcome of an executed command.
type Result struct {
	// Output is combined stdout and stderr.
	Output string
	// ExitCode is the process exit code; -1 when the process did not run.
	ExitCode int
}

// Runner executes a command with a bounded timeout. A timeout or failure to
// spawn is returned as err; a clean run with non-zero exit is not an error,
// callers inspect Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

// Filesystem is the file access surface of the service controller.
type Filesystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(path string) error
	Exists(path string) bool
	MkdirAll(path string, perm fs.FileMode) error
}

// InterfaceLister enumerates the physical network interfaces of the host.
type InterfaceLister interface {
	PhysicalInterfaces() ([]string, error)
}

// System bundles the capabilities the controller needs.
type System interface {
	Runner
	Filesystem
	InterfaceLister
}
