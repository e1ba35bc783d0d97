// Package service reconciles the running DHCP daemon with the desired
// declarative state: generate config, write atomically, validate with the
// daemon's own syntax checker, then restart the unit.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lovi-cloud/lyra/config"
	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/system"
)

// Reconciliation error kinds.
var (
	// ErrNoEnabledSubnets means start or restart was requested with nothing
	// to serve. Starting a DHCP daemon bound to no range is a
	// misconfiguration, so the request is refused before any write.
	ErrNoEnabledSubnets = errors.New("no enabled subnets configured")
	// ErrConfigInvalid means the daemon's syntax check rejected the
	// generated config. The wrapped message carries the daemon diagnostic.
	ErrConfigInvalid = errors.New("configuration rejected by dhcpd")
	// ErrProcessTimeout means an external command did not finish in time.
	ErrProcessTimeout = errors.New("command timed out")
	// ErrProcessFailure means an external command could not run or exited
	// non-zero where success was required.
	ErrProcessFailure = errors.New("command failed")
	// ErrServiceUnknown means the service manager query could not determine
	// the daemon state.
	ErrServiceUnknown = errors.New("service state unknown")
)

// Controller owns the reconciliation lock and the injected system
// capabilities. Apply, start, stop and restart serialize on the lock;
// status, preview and lease reads take no lock and tolerate files a
// concurrent apply is mid-writing.
type Controller struct {
	cfg    *config.Config
	sys    system.System
	logger *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New is
func New(cfg *config.Config, sys system.System, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		sys:    sys,
		logger: logger,
		now:    time.Now,
	}
}

// Status queries the service manager. A query failure is reported as the
// unknown state, never as a caller-facing error.
func (c *Controller) Status(ctx context.Context) dhcpd.ServiceStatus {
	status := dhcpd.ServiceStatus{State: dhcpd.ServiceUnknown}

	active, err := c.sys.Run(ctx, c.cfg.Timeout(), "systemctl", "is-active", c.cfg.ServiceUnit)
	if err != nil {
		c.logger.Warn("service state query failed", zap.String("unit", c.cfg.ServiceUnit), zap.Error(err))
		return status
	}
	if active.ExitCode == 0 {
		status.State = dhcpd.ServiceRunning
		status.Running = true
	} else {
		status.State = dhcpd.ServiceStopped
	}

	enabled, err := c.sys.Run(ctx, c.cfg.Timeout(), "systemctl", "is-enabled", c.cfg.ServiceUnit)
	if err == nil && enabled.ExitCode == 0 {
		status.Enabled = true
	}

	if status.Running {
		status.Uptime = c.uptime(ctx)
	}
	return status
}

func (c *Controller) uptime(ctx context.Context) string {
	res, err := c.sys.Run(ctx, c.cfg.Timeout(), "systemctl", "show", c.cfg.ServiceUnit, "--property=ActiveEnterTimestamp")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(res.Output), "ActiveEnterTimestamp="))
	if value == "" {
		return ""
	}
	started, err := time.Parse("Mon 2006-01-02 15:04:05 MST", value)
	if err != nil {
		return ""
	}
	return c.now().Sub(started).Truncate(time.Second).String()
}

// ConfPath is the live configuration path the controller reconciles.
func (c *Controller) ConfPath() string {
	return c.cfg.ConfPath
}

// Preview generates the configuration text without touching the filesystem.
func (c *Controller) Preview(subnets []dhcpd.Subnet, hosts []dhcpd.Host, options []dhcpd.Option) string {
	return dhcpd.GenerateConf(subnets, hosts, options)
}

// Validate runs the daemon's syntax check against the given config path and
// returns the daemon diagnostic verbatim. The daemon is the authority on
// config correctness, not the generator.
func (c *Controller) Validate(ctx context.Context, path string) (bool, string, error) {
	res, err := c.run(ctx, c.cfg.DhcpdBinary, "-t", "-cf", path)
	if err != nil {
		return false, res.Output, err
	}
	if res.ExitCode != 0 {
		return false, res.Output, nil
	}
	return true, "configuration is valid", nil
}

// Apply generates and writes the configuration, validates it with the
// daemon, and restarts the service. An empty enabled-subnet set is allowed:
// the header-only config is still valid to the daemon's check mode.
func (c *Controller) Apply(ctx context.Context, subnets []dhcpd.Subnet, hosts []dhcpd.Host, options []dhcpd.Option) (string, error) {
	return c.apply(ctx, subnets, hosts, options, false)
}

// Start applies the configuration with start semantics: it refuses with
// ErrNoEnabledSubnets before any file write or process invocation when
// nothing is enabled.
func (c *Controller) Start(ctx context.Context, subnets []dhcpd.Subnet, hosts []dhcpd.Host, options []dhcpd.Option) (string, error) {
	return c.apply(ctx, subnets, hosts, options, true)
}

// Restart re-applies the configuration; same guard as Start.
func (c *Controller) Restart(ctx context.Context, subnets []dhcpd.Subnet, hosts []dhcpd.Host, options []dhcpd.Option) (string, error) {
	return c.apply(ctx, subnets, hosts, options, true)
}

func (c *Controller) apply(ctx context.Context, subnets []dhcpd.Subnet, hosts []dhcpd.Host, options []dhcpd.Option, start bool) (string, error) {
	enabled := 0
	for _, s := range subnets {
		if s.Enabled {
			enabled++
		}
	}
	if start && enabled == 0 {
		return "", ErrNoEnabledSubnets
	}
	if err := checkSubnets(subnets); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	text := dhcpd.GenerateConf(subnets, hosts, options)
	if err := c.writeAtomic(c.cfg.ConfPath, text); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}

	ok, diag, err := c.Validate(ctx, c.cfg.ConfPath)
	if err != nil {
		return "", err
	}
	if !ok {
		// The invalid file stays on disk; the daemon keeps running on the
		// config it already loaded and is never restarted here.
		return "", fmt.Errorf("%w: %s", ErrConfigInvalid, diag)
	}

	if err := c.writeAtomic(c.cfg.DefaultsPath, dhcpd.GenerateDefaults(subnets)); err != nil {
		return "", fmt.Errorf("failed to write defaults file: %w", err)
	}

	res, err := c.run(ctx, "systemctl", "restart", c.cfg.ServiceUnit)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: restart exited %d: %s", ErrProcessFailure, res.ExitCode, strings.TrimSpace(res.Output))
	}

	// Restart can exit 0 while the unit immediately fails; confirm it is
	// actually active before reporting success.
	active, err := c.sys.Run(ctx, c.cfg.Timeout(), "systemctl", "is-active", c.cfg.ServiceUnit)
	if err != nil {
		return "", fmt.Errorf("%w: could not query unit state after restart: %v", ErrServiceUnknown, err)
	}
	if active.ExitCode != 0 {
		return "", fmt.Errorf("%w: unit not active after restart: %s", ErrProcessFailure, strings.TrimSpace(active.Output))
	}

	// Enabling the unit at boot is best-effort.
	if res, err := c.sys.Run(ctx, c.cfg.Timeout(), "systemctl", "enable", c.cfg.ServiceUnit); err != nil || res.ExitCode != 0 {
		c.logger.Warn("failed to enable unit", zap.String("unit", c.cfg.ServiceUnit), zap.Error(err))
	}

	c.logger.Info("configuration applied",
		zap.Int("enabled_subnets", enabled),
		zap.String("conf", c.cfg.ConfPath))
	return fmt.Sprintf("configuration applied: %d subnet(s), service restarted", enabled), nil
}

// checkSubnets re-runs the addressing invariants defensively before any
// write, including cross-subnet overlap, so a caller that skipped validation
// cannot push an ambiguous config to disk.
func checkSubnets(subnets []dhcpd.Subnet) error {
	var active []dhcpd.Subnet
	for _, s := range subnets {
		if !s.Enabled {
			continue
		}
		if err := dhcpd.ValidateSubnet(s); err != nil {
			return fmt.Errorf("subnet %s: %w", s.Name, err)
		}
		active = append(active, s)
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if dhcpd.SubnetsOverlap(active[i].Network, active[j].Network) {
				return fmt.Errorf("%w: subnets %s and %s overlap", dhcpd.ErrInvalidRange, active[i].Name, active[j].Name)
			}
		}
	}
	return nil
}

// Stop stops the daemon. Stopping an already stopped unit succeeds.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.run(ctx, "systemctl", "stop", c.cfg.ServiceUnit)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: stop exited %d: %s", ErrProcessFailure, res.ExitCode, strings.TrimSpace(res.Output))
	}
	c.logger.Info("service stopped", zap.String("unit", c.cfg.ServiceUnit))
	return "service stopped", nil
}

// Leases parses the daemon's lease database, annotating each lease with the
// name of the subnet whose network contains it. A missing lease file is an
// empty result.
func (c *Controller) Leases(subnets []dhcpd.Subnet) ([]dhcpd.Lease, error) {
	if !c.sys.Exists(c.cfg.LeasePath) {
		return nil, nil
	}
	raw, err := c.sys.ReadFile(c.cfg.LeasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lease file: %w", err)
	}
	leases, err := dhcpd.ParseLeases(bytes.NewReader(raw), c.now())
	if err != nil {
		return nil, err
	}
	for i := range leases {
		for _, s := range subnets {
			if s.Network.Prefix().Contains(leases[i].IPAddress.Addr()) {
				leases[i].SubnetName = s.Name
				break
			}
		}
	}
	return leases, nil
}

// SubnetLeases filters the lease database to one subnet's network.
func (c *Controller) SubnetLeases(subnet dhcpd.Subnet) ([]dhcpd.Lease, error) {
	leases, err := c.Leases(nil)
	if err != nil {
		return nil, err
	}
	return dhcpd.LeasesInNetwork(leases, subnet.Network, subnet.Name), nil
}

// PhysicalInterfaces lists the host NICs a subnet may bind to.
func (c *Controller) PhysicalInterfaces() ([]string, error) {
	return c.sys.PhysicalInterfaces()
}

// run executes a command mapping runner-level failures to the controller's
// error kinds. A non-zero exit is not an error here.
func (c *Controller) run(ctx context.Context, name string, args ...string) (system.Result, error) {
	res, err := c.sys.Run(ctx, c.cfg.Timeout(), name, args...)
	if errors.Is(err, context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s %s", ErrProcessTimeout, name, strings.Join(args, " "))
	}
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrProcessFailure, name, err)
	}
	return res, nil
}

// writeAtomic writes content next to path and renames it into place so the
// daemon never observes a half-written file. The temporary file is removed
// on every failure path.
func (c *Controller) writeAtomic(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := c.sys.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := c.sys.WriteFile(tmp, []byte(content), 0644); err != nil {
		c.sys.Remove(tmp)
		return err
	}
	if err := c.sys.Rename(tmp, path); err != nil {
		c.sys.Remove(tmp)
		return err
	}
	return nil
}
