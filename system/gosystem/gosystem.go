// Package gosystem implements the system capabilities against the local host.
package gosystem

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"

	"github.com/lovi-cloud/lyra/system"
)

// GoSystem is
type GoSystem struct{}

// New is
func New() (system.System, error) {
	return &GoSystem{}, nil
}

// Run executes a command with a bounded timeout and captures combined output.
func (g *GoSystem) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (system.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	res := system.Result{Output: string(out), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if ctx.Err() == context.DeadlineExceeded {
		return res, context.DeadlineExceeded
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Ran to completion with non-zero exit; the caller decides.
		return res, nil
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// ReadFile is
func (g *GoSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile is
func (g *GoSystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// Rename is
func (g *GoSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Remove is
func (g *GoSystem) Remove(path string) error {
	return os.Remove(path)
}

// Exists is
func (g *GoSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MkdirAll is
func (g *GoSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// PhysicalInterfaces lists host NICs backed by a real driver. Loopback and
// virtual links (bridges, veth pairs, bonds) are filtered out so operators
// only bind the daemon to interfaces that physically exist.
func (g *GoSystem) PhysicalInterfaces() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}

	et, err := ethtool.NewEthtool()
	if err != nil {
		return nil, err
	}
	defer et.Close()

	var names []string
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		if link.Type() != "device" {
			continue
		}
		driver, err := et.DriverName(attrs.Name)
		if err != nil || driver == "" {
			continue
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}
