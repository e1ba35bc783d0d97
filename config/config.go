package config

import (
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is lyra config struct.
type Config struct {
	ConfPath       string `yaml:"conf_path"`
	LeasePath      string `yaml:"lease_path"`
	DefaultsPath   string `yaml:"defaults_path"`
	ServiceUnit    string `yaml:"service_unit"`
	DhcpdBinary    string `yaml:"dhcpd_binary"`
	CommandTimeout int    `yaml:"command_timeout"`
	DSN            string `yaml:"dsn"`
	ListenAddr     string `yaml:"listen_addr"`
}

// Default returns the configuration for a stock isc-dhcp-server install.
func Default() *Config {
	return &Config{
		ConfPath:       "/etc/dhcp/dhcpd.conf",
		LeasePath:      "/var/lib/dhcp/dhcpd.leases",
		DefaultsPath:   "/etc/default/isc-dhcp-server",
		ServiceUnit:    "isc-dhcp-server",
		DhcpdBinary:    "/usr/sbin/dhcpd",
		CommandTimeout: 30,
		DSN:            "file:lyra.db?cache=shared&_foreign_keys=on",
		ListenAddr:     ":8067",
	}
}

// LoadConfig reads a YAML config, filling unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := yaml.NewDecoder(f)
	var loaded Config
	if err := d.Decode(&loaded); err != nil {
		return nil, err
	}
	merge(c, &loaded)
	return c, nil
}

func merge(dst, src *Config) {
	if src.ConfPath != "" {
		dst.ConfPath = src.ConfPath
	}
	if src.LeasePath != "" {
		dst.LeasePath = src.LeasePath
	}
	if src.DefaultsPath != "" {
		dst.DefaultsPath = src.DefaultsPath
	}
	if src.ServiceUnit != "" {
		dst.ServiceUnit = src.ServiceUnit
	}
	if src.DhcpdBinary != "" {
		dst.DhcpdBinary = src.DhcpdBinary
	}
	if src.CommandTimeout > 0 {
		dst.CommandTimeout = src.CommandTimeout
	}
	if src.DSN != "" {
		dst.DSN = src.DSN
	}
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
}

// Timeout returns the command timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}
