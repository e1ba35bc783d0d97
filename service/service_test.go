package service

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lovi-cloud/lyra/config"
	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/system"
	"github.com/lovi-cloud/lyra/types"
)

type fakeResult struct {
	result system.Result
	err    error
}

// fakeSystem records every command and filesystem mutation. Commands match
// responses by prefix; anything unmatched succeeds with exit 0.
type fakeSystem struct {
	commands  []string
	responses map[string]fakeResult
	files     map[string][]byte
	dirs      []string
	writeErr  error
	ifaces    []string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		responses: make(map[string]fakeResult),
		files:     make(map[string][]byte),
	}
}

func (f *fakeSystem) respond(prefix, output string, exitCode int, err error) {
	f.responses[prefix] = fakeResult{system.Result{Output: output, ExitCode: exitCode}, err}
}

func (f *fakeSystem) Run(_ context.Context, _ time.Duration, name string, args ...string) (system.Result, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.commands = append(f.commands, cmd)
	for prefix, r := range f.responses {
		if strings.HasPrefix(cmd, prefix) {
			return r.result, r.err
		}
	}
	return system.Result{ExitCode: 0}, nil
}

func (f *fakeSystem) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (f *fakeSystem) WriteFile(path string, data []byte, _ fs.FileMode) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeSystem) Rename(oldpath, newpath string) error {
	data, ok := f.files[oldpath]
	if !ok {
		return fs.ErrNotExist
	}
	f.files[newpath] = data
	delete(f.files, oldpath)
	return nil
}

func (f *fakeSystem) Remove(path string) error {
	delete(f.files, path)
	return nil
}

func (f *fakeSystem) Exists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *fakeSystem) MkdirAll(path string, _ fs.FileMode) error {
	f.dirs = append(f.dirs, path)
	return nil
}

func (f *fakeSystem) PhysicalInterfaces() ([]string, error) {
	return f.ifaces, nil
}

func (f *fakeSystem) ran(prefix string) bool {
	return f.indexOf(prefix) >= 0
}

func (f *fakeSystem) indexOf(prefix string) int {
	for i, cmd := range f.commands {
		if strings.HasPrefix(cmd, prefix) {
			return i
		}
	}
	return -1
}

func testController(t *testing.T) (*Controller, *fakeSystem) {
	t.Helper()
	sys := newFakeSystem()
	cfg := config.Default()
	c := New(cfg, sys, zap.NewNop())
	return c, sys
}

func enabledSubnet(t *testing.T, name, network, start, end, gateway string) dhcpd.Subnet {
	t.Helper()
	n, err := types.ParseCIDR(network)
	if err != nil {
		t.Fatal(err)
	}
	s, err := types.ParseIP(start)
	if err != nil {
		t.Fatal(err)
	}
	e, err := types.ParseIP(end)
	if err != nil {
		t.Fatal(err)
	}
	g, err := types.ParseIP(gateway)
	if err != nil {
		t.Fatal(err)
	}
	return dhcpd.Subnet{
		Name:         name,
		Network:      *n,
		RangeStart:   *s,
		RangeEnd:     *e,
		Gateway:      *g,
		Interface:    "eth0",
		LeaseTime:    86400,
		MaxLeaseTime: 172800,
		Enabled:      true,
	}
}

func TestApply(t *testing.T) {
	c, sys := testController(t)
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")

	msg, err := c.Apply(context.Background(), []dhcpd.Subnet{subnet}, nil, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !strings.Contains(msg, "1 subnet(s)") {
		t.Errorf("message = %q", msg)
	}

	conf, ok := sys.files[c.cfg.ConfPath]
	if !ok {
		t.Fatal("config file not written")
	}
	if !strings.Contains(string(conf), "subnet 192.168.1.0 netmask 255.255.255.0 {") {
		t.Errorf("config missing subnet block:\n%s", conf)
	}
	if sys.Exists(c.cfg.ConfPath + ".tmp") {
		t.Error("temporary file left behind")
	}
	if defaults := string(sys.files[c.cfg.DefaultsPath]); !strings.Contains(defaults, `INTERFACESv4="eth0"`) {
		t.Errorf("defaults file = %q", defaults)
	}

	// The syntax check must run before the restart.
	check := sys.indexOf(c.cfg.DhcpdBinary + " -t -cf")
	restart := sys.indexOf("systemctl restart")
	if check < 0 || restart < 0 || check > restart {
		t.Errorf("command order wrong: %v", sys.commands)
	}
	if !sys.ran("systemctl enable") {
		t.Errorf("unit not enabled: %v", sys.commands)
	}
}

func TestApplyInvalidConfigStaysOnDisk(t *testing.T) {
	c, sys := testController(t)
	sys.respond(c.cfg.DhcpdBinary+" -t -cf", "dhcpd.conf line 12: semicolon expected", 1, nil)
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")

	_, err := c.Apply(context.Background(), []dhcpd.Subnet{subnet}, nil, nil)
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "semicolon expected") {
		t.Errorf("daemon diagnostic lost: %v", err)
	}

	// The rejected file remains on disk for inspection; the daemon keeps
	// running on its loaded config and is not restarted.
	if !sys.Exists(c.cfg.ConfPath) {
		t.Error("rejected config removed from disk")
	}
	if sys.ran("systemctl restart") {
		t.Errorf("service restarted on invalid config: %v", sys.commands)
	}
	if sys.Exists(c.cfg.DefaultsPath) {
		t.Error("defaults written despite invalid config")
	}
}

func TestStartRefusesWithoutEnabledSubnets(t *testing.T) {
	c, sys := testController(t)
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")
	subnet.Enabled = false

	_, err := c.Start(context.Background(), []dhcpd.Subnet{subnet}, nil, nil)
	if !errors.Is(err, ErrNoEnabledSubnets) {
		t.Fatalf("expected ErrNoEnabledSubnets, got %v", err)
	}
	if len(sys.commands) != 0 {
		t.Errorf("commands ran before the guard: %v", sys.commands)
	}
	if len(sys.files) != 0 {
		t.Errorf("files written before the guard: %v", sys.files)
	}
}

func TestApplyAllowsEmptyConfig(t *testing.T) {
	c, sys := testController(t)

	if _, err := c.Apply(context.Background(), nil, nil, nil); err != nil {
		t.Fatalf("Apply with no subnets: %v", err)
	}
	if !strings.Contains(string(sys.files[c.cfg.ConfPath]), "# No subnets configured.") {
		t.Error("header-only config not written")
	}
}

func TestApplyRejectsOverlappingSubnets(t *testing.T) {
	c, sys := testController(t)
	a := enabledSubnet(t, "wide", "10.0.0.0/16", "10.0.1.10", "10.0.1.20", "10.0.1.1")
	b := enabledSubnet(t, "narrow", "10.0.2.0/24", "10.0.2.10", "10.0.2.20", "10.0.2.1")

	_, err := c.Apply(context.Background(), []dhcpd.Subnet{a, b}, nil, nil)
	if !errors.Is(err, dhcpd.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if len(sys.files) != 0 {
		t.Errorf("files written despite overlap: %v", sys.files)
	}
}

func TestRestartTimeout(t *testing.T) {
	c, sys := testController(t)
	sys.respond("systemctl restart", "", -1, context.DeadlineExceeded)
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")

	_, err := c.Restart(context.Background(), []dhcpd.Subnet{subnet}, nil, nil)
	if !errors.Is(err, ErrProcessTimeout) {
		t.Fatalf("expected ErrProcessTimeout, got %v", err)
	}
}

func TestRestartUnitStateUnknown(t *testing.T) {
	c, sys := testController(t)
	sys.respond("systemctl is-active", "", -1, errors.New("cannot connect to bus"))
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")

	_, err := c.Restart(context.Background(), []dhcpd.Subnet{subnet}, nil, nil)
	if !errors.Is(err, ErrServiceUnknown) {
		t.Fatalf("expected ErrServiceUnknown, got %v", err)
	}
}

func TestApplyUnitInactiveAfterRestart(t *testing.T) {
	c, sys := testController(t)
	sys.respond("systemctl is-active", "failed", 3, nil)
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")

	_, err := c.Apply(context.Background(), []dhcpd.Subnet{subnet}, nil, nil)
	if !errors.Is(err, ErrProcessFailure) {
		t.Fatalf("expected ErrProcessFailure, got %v", err)
	}
}

func TestStopFailure(t *testing.T) {
	c, sys := testController(t)
	sys.respond("systemctl stop", "Failed to stop isc-dhcp-server.service", 1, nil)

	_, err := c.Stop(context.Background())
	if !errors.Is(err, ErrProcessFailure) {
		t.Fatalf("expected ErrProcessFailure, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	c, sys := testController(t)
	c.now = func() time.Time { return time.Date(2024, 12, 18, 12, 0, 0, 0, time.UTC) }
	sys.respond("systemctl is-active", "active", 0, nil)
	sys.respond("systemctl is-enabled", "enabled", 0, nil)
	sys.respond("systemctl show", "ActiveEnterTimestamp=Wed 2024-12-18 10:00:00 UTC", 0, nil)

	status := c.Status(context.Background())
	if status.State != dhcpd.ServiceRunning || !status.Running {
		t.Errorf("state = %s, want running", status.State)
	}
	if !status.Enabled {
		t.Error("enabled = false, want true")
	}
	if status.Uptime != "2h0m0s" {
		t.Errorf("uptime = %q, want 2h0m0s", status.Uptime)
	}
}

func TestStatusStopped(t *testing.T) {
	c, sys := testController(t)
	sys.respond("systemctl is-active", "inactive", 3, nil)
	sys.respond("systemctl is-enabled", "disabled", 1, nil)

	status := c.Status(context.Background())
	if status.State != dhcpd.ServiceStopped || status.Running {
		t.Errorf("state = %s, want stopped", status.State)
	}
	if status.Uptime != "" {
		t.Errorf("uptime = %q for stopped service", status.Uptime)
	}
}

func TestStatusUnknownOnQueryFailure(t *testing.T) {
	c, sys := testController(t)
	sys.respond("systemctl is-active", "", -1, errors.New("systemctl not found"))

	status := c.Status(context.Background())
	if status.State != dhcpd.ServiceUnknown {
		t.Errorf("state = %s, want unknown", status.State)
	}
}

func TestLeasesMissingFile(t *testing.T) {
	c, _ := testController(t)

	leases, err := c.Leases(nil)
	if err != nil {
		t.Fatalf("Leases: %v", err)
	}
	if leases != nil {
		t.Errorf("expected nil for missing lease file, got %v", leases)
	}
}

func TestLeasesAnnotatesSubnetName(t *testing.T) {
	c, sys := testController(t)
	c.now = func() time.Time { return time.Date(2024, 12, 18, 12, 0, 0, 0, time.UTC) }
	sys.files[c.cfg.LeasePath] = []byte(`lease 192.168.1.100 {
  ends 3 2024/12/18 22:00:00;
  binding state active;
}
lease 172.16.0.5 {
  binding state active;
}
`)
	subnet := enabledSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")

	leases, err := c.Leases([]dhcpd.Subnet{subnet})
	if err != nil {
		t.Fatalf("Leases: %v", err)
	}
	if len(leases) != 2 {
		t.Fatalf("expected 2 leases, got %d", len(leases))
	}
	byIP := make(map[string]dhcpd.Lease)
	for _, l := range leases {
		byIP[l.IPAddress.String()] = l
	}
	if got := byIP["192.168.1.100"].SubnetName; got != "office" {
		t.Errorf("subnet name = %q, want office", got)
	}
	if got := byIP["172.16.0.5"].SubnetName; got != "" {
		t.Errorf("unmatched lease annotated with %q", got)
	}
}

func TestValidateReportsDiagnostic(t *testing.T) {
	c, sys := testController(t)
	sys.respond(c.cfg.DhcpdBinary+" -t -cf", "bad pool range", 1, nil)

	ok, diag, err := c.Validate(context.Background(), c.cfg.ConfPath)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Error("expected invalid result")
	}
	if diag != "bad pool range" {
		t.Errorf("diag = %q", diag)
	}
}
