package types

import (
	"database/sql/driver"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// IP is netip.Addr with the implementation of the Valuer and Scanner interface.
type IP netip.Addr

// Value implements the database/sql/driver Valuer interface.
func (i IP) Value() (driver.Value, error) {
	return driver.Value(i.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (i *IP) Scan(src interface{}) error {
	var ip *IP
	var err error
	switch src := src.(type) {
	case string:
		ip, err = ParseIP(src)
	case []uint8:
		ip, err = ParseIP(fmt.Sprintf("%s", src))
	default:
		return fmt.Errorf("incompatible type for IP: %T", src)
	}
	if err != nil {
		return err
	}
	*i = *ip
	return nil
}

func (i IP) String() string {
	return netip.Addr(i).String()
}

// Addr returns the underlying netip.Addr.
func (i IP) Addr() netip.Addr {
	return netip.Addr(i)
}

// IsValid reports whether the address has been set.
func (i IP) IsValid() bool {
	return netip.Addr(i).IsValid()
}

// MarshalYAML is
func (i IP) MarshalYAML() (interface{}, error) {
	return i.String(), nil
}

// UnmarshalYAML is
func (i *IP) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var buff string
	if err := unmarshal(&buff); err != nil {
		return err
	}
	tmp, err := ParseIP(buff)
	if err != nil {
		return fmt.Errorf("failed to unmarshal IP: input=\"%s\"", buff)
	}
	*i = *tmp
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (i IP) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *IP) UnmarshalText(text []byte) error {
	tmp, err := ParseIP(string(text))
	if err != nil {
		return err
	}
	*i = *tmp
	return nil
}

// IPNet is netip.Prefix with the implementation of the Valuer and Scanner interface.
type IPNet netip.Prefix

// Value implements the database/sql/driver Valuer interface.
func (i IPNet) Value() (driver.Value, error) {
	return driver.Value(i.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (i *IPNet) Scan(src interface{}) error {
	var ipNet *IPNet
	var err error
	switch src := src.(type) {
	case string:
		ipNet, err = ParseCIDR(src)
	case []uint8:
		ipNet, err = ParseCIDR(fmt.Sprintf("%s", src))
	default:
		return fmt.Errorf("incompatible type for IPNet: %T", src)
	}
	if err != nil {
		return err
	}
	*i = *ipNet
	return nil
}

func (i IPNet) String() string {
	return netip.Prefix(i).String()
}

// Prefix returns the underlying netip.Prefix.
func (i IPNet) Prefix() netip.Prefix {
	return netip.Prefix(i)
}

// IsValid reports whether the prefix has been set.
func (i IPNet) IsValid() bool {
	return netip.Prefix(i).IsValid()
}

// MarshalYAML is
func (i IPNet) MarshalYAML() (interface{}, error) {
	return i.String(), nil
}

// UnmarshalYAML is
func (i *IPNet) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var buff string
	if err := unmarshal(&buff); err != nil {
		return err
	}
	tmp, err := ParseCIDR(buff)
	if err != nil {
		return fmt.Errorf("failed to unmarshal IPNet: input=\"%s\"", buff)
	}
	*i = *tmp
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (i IPNet) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *IPNet) UnmarshalText(text []byte) error {
	tmp, err := ParseCIDR(string(text))
	if err != nil {
		return err
	}
	*i = *tmp
	return nil
}

// HardwareAddr is net.HardwareAddr with the implementation of the Valuer and
// Scanner interface. The stored form is always the canonical lower-case
// colon-separated six-octet representation.
type HardwareAddr net.HardwareAddr

// Value implements the database/sql/driver Valuer interface.
func (h HardwareAddr) Value() (driver.Value, error) {
	return driver.Value(h.String()), nil
}

// Scan implements the database/sql Scanner interface.
func (h *HardwareAddr) Scan(src interface{}) error {
	var mac *HardwareAddr
	var err error
	switch src := src.(type) {
	case string:
		mac, err = ParseMAC(src)
	case []uint8:
		mac, err = ParseMAC(fmt.Sprintf("%s", src))
	default:
		return fmt.Errorf("incompatible type for HardwareAddr: %T", src)
	}
	if err != nil {
		return err
	}
	*h = *mac
	return nil
}

func (h HardwareAddr) String() string {
	return net.HardwareAddr(h).String()
}

// MarshalText implements encoding.TextMarshaler.
func (h HardwareAddr) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HardwareAddr) UnmarshalText(text []byte) error {
	tmp, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*h = *tmp
	return nil
}

// ParseIP is
func ParseIP(s string) (*IP, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse IP: input=\"%s\"", s)
	}
	ip := IP(a)
	return &ip, nil
}

// ParseCIDR is
func ParseCIDR(s string) (*IPNet, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to parse CIDR: input=\"%s\"", s)
	}
	ipNet := IPNet(p.Masked())
	return &ipNet, nil
}

// ParseMAC parses a colon- or hyphen-separated six-octet hardware address and
// returns it in canonical form. Forms net.ParseMAC accepts but dhcpd does not
// (EUI-64, dotted) are rejected.
func ParseMAC(s string) (*HardwareAddr, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "-", ":"))
	if strings.Count(s, ":") != 5 {
		return nil, fmt.Errorf("failed to parse MAC: input=\"%s\"", s)
	}
	m, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MAC: input=\"%s\"", s)
	}
	mac := HardwareAddr(m)
	return &mac, nil
}
