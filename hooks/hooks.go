// Package hooks holds the install-time and uninstall-time system
// preparation for the managed DHCP daemon. Every step is best-effort:
// failures are logged and collected, never fatal, so a half-privileged run
// still gets as far as it can.
package hooks

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lovi-cloud/lyra/config"
	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/system"
)

const initialConf = dhcpd.ConfHeader + `# Configuration will be generated when subnets are created.

# No subnets configured yet.
`

// PostInstall prepares the system after the daemon package is installed:
// config and lease directories, a seed header-only config, an empty lease
// file and an empty-interfaces defaults file. The unit is stopped first to
// avoid serving a stale config during setup. Returns the collected warnings.
func PostInstall(ctx context.Context, sys system.System, cfg *config.Config, logger *zap.Logger) []string {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		logger.Warn("post-install step failed", zap.String("step", msg))
		warnings = append(warnings, msg)
	}

	if err := sys.MkdirAll(filepath.Dir(cfg.ConfPath), 0755); err != nil {
		warn("failed to create %s: %v", filepath.Dir(cfg.ConfPath), err)
	}

	// Stop the unit if it is running so setup does not race a daemon
	// loaded with someone else's config.
	if _, err := sys.Run(ctx, cfg.Timeout(), "systemctl", "stop", cfg.ServiceUnit); err != nil {
		logger.Warn("could not stop unit", zap.String("unit", cfg.ServiceUnit), zap.Error(err))
	}

	if !hasContent(sys, cfg.ConfPath) {
		if err := sys.WriteFile(cfg.ConfPath, []byte(initialConf), 0644); err != nil {
			warn("failed to write initial config %s: %v", cfg.ConfPath, err)
		}
	}

	if err := sys.MkdirAll(filepath.Dir(cfg.LeasePath), 0755); err != nil {
		warn("failed to create %s: %v", filepath.Dir(cfg.LeasePath), err)
	} else if !sys.Exists(cfg.LeasePath) {
		if err := sys.WriteFile(cfg.LeasePath, []byte(""), 0644); err != nil {
			warn("failed to create lease file %s: %v", cfg.LeasePath, err)
		}
	}

	if err := sys.WriteFile(cfg.DefaultsPath, []byte(dhcpd.GenerateDefaults(nil)), 0644); err != nil {
		warn("failed to write defaults %s: %v", cfg.DefaultsPath, err)
	}

	if len(warnings) == 0 {
		logger.Info("post-install completed")
	} else {
		logger.Warn("post-install completed with warnings", zap.Int("warnings", len(warnings)))
	}
	return warnings
}

// PreUninstall tears down before removal: stop and disable the unit, back up
// the current config with a timestamp suffix, remove lease files. Cleanup
// failures do not block teardown.
func PreUninstall(ctx context.Context, sys system.System, cfg *config.Config, logger *zap.Logger) []string {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		logger.Warn("pre-uninstall step failed", zap.String("step", msg))
		warnings = append(warnings, msg)
	}

	if res, err := sys.Run(ctx, cfg.Timeout(), "systemctl", "stop", cfg.ServiceUnit); err != nil || res.ExitCode != 0 {
		warn("failed to stop unit %s", cfg.ServiceUnit)
	}
	if _, err := sys.Run(ctx, cfg.Timeout(), "systemctl", "disable", cfg.ServiceUnit); err != nil {
		logger.Warn("could not disable unit", zap.String("unit", cfg.ServiceUnit), zap.Error(err))
	}

	if sys.Exists(cfg.ConfPath) {
		backup := fmt.Sprintf("%s.backup_%s", cfg.ConfPath, time.Now().UTC().Format("20060102_150405"))
		if data, err := sys.ReadFile(cfg.ConfPath); err != nil {
			warn("failed to read config for backup: %v", err)
		} else if err := sys.WriteFile(backup, data, 0644); err != nil {
			warn("failed to back up config to %s: %v", backup, err)
		} else {
			logger.Info("config backed up", zap.String("path", backup))
		}
	}

	for _, path := range []string{cfg.LeasePath, cfg.LeasePath + "~"} {
		if !sys.Exists(path) {
			continue
		}
		if err := sys.Remove(path); err != nil {
			logger.Warn("could not remove lease file", zap.String("path", path), zap.Error(err))
		}
	}

	if len(warnings) == 0 {
		logger.Info("pre-uninstall completed")
	} else {
		logger.Warn("pre-uninstall completed with warnings", zap.Int("warnings", len(warnings)))
	}
	return warnings
}

func hasContent(sys system.System, path string) bool {
	if !sys.Exists(path) {
		return false
	}
	data, err := sys.ReadFile(path)
	return err == nil && len(data) > 0
}
