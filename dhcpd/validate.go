package dhcpd

import (
	"errors"
	"fmt"
	"net/netip"

	"go4.org/netipx"

	"github.com/lovi-cloud/lyra/types"
)

// Validation error kinds. Callers discriminate them with errors.Is.
var (
	// ErrInvalidAddress means an IP, CIDR or MAC failed to parse.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidRange means range start exceeds range end.
	ErrInvalidRange = errors.New("invalid address range")
	// ErrOutOfSubnet means an address does not lie within the subnet network.
	ErrOutOfSubnet = errors.New("address not in subnet")
)

// ValidateIPInSubnet reports whether ip is a usable address inside network.
// The network and broadcast addresses are rejected, except for /31 networks
// where both addresses are usable on point-to-point links.
func ValidateIPInSubnet(ip, network string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return false
	}
	return addrUsable(prefix.Masked(), addr) == nil
}

func addrUsable(prefix netip.Prefix, ip netip.Addr) error {
	if !prefix.Contains(ip) {
		return fmt.Errorf("%w: %s is not in %s", ErrOutOfSubnet, ip, prefix)
	}
	if ip.Is4() && prefix.Bits() != 31 && prefix.Bits() != 32 {
		r := netipx.RangeOfPrefix(prefix)
		if r.From() == ip || r.To() == ip {
			return fmt.Errorf("%w: %s is the network or broadcast address of %s", ErrOutOfSubnet, ip, prefix)
		}
	}
	return nil
}

// ValidateIPRange checks that start and end parse, both lie within network
// and start does not exceed end. The returned error wraps ErrInvalidAddress,
// ErrOutOfSubnet or ErrInvalidRange. The managed daemon serves IPv4 only, so
// non-IPv4 networks are rejected here before they reach the generator.
func ValidateIPRange(start, end, network string) error {
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return fmt.Errorf("%w: network %q", ErrInvalidAddress, network)
	}
	if !prefix.Addr().Is4() {
		return fmt.Errorf("%w: network %q is not IPv4", ErrInvalidAddress, network)
	}
	prefix = prefix.Masked()

	startAddr, err := netip.ParseAddr(start)
	if err != nil {
		return fmt.Errorf("%w: range start %q", ErrInvalidAddress, start)
	}
	endAddr, err := netip.ParseAddr(end)
	if err != nil {
		return fmt.Errorf("%w: range end %q", ErrInvalidAddress, end)
	}

	if err := addrUsable(prefix, startAddr); err != nil {
		return err
	}
	if err := addrUsable(prefix, endAddr); err != nil {
		return err
	}

	if endAddr.Less(startAddr) {
		return fmt.Errorf("%w: start %s exceeds end %s", ErrInvalidRange, startAddr, endAddr)
	}
	return nil
}

// ValidateMAC reports whether mac is six colon- or hyphen-separated two-digit
// hexadecimal octets. Case-insensitive.
func ValidateMAC(mac string) bool {
	_, err := types.ParseMAC(mac)
	return err == nil
}

// CanonicalMAC parses mac and returns the canonical lower-case
// colon-separated form used for storage and config generation.
func CanonicalMAC(mac string) (types.HardwareAddr, error) {
	m, err := types.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: mac %q", ErrInvalidAddress, mac)
	}
	return *m, nil
}

// SubnetsOverlap reports whether the address ranges of two CIDR blocks
// intersect. Malformed input counts as non-overlapping; parse errors are the
// caller's problem and belong to ValidateIPRange.
func SubnetsOverlap(a, b types.IPNet) bool {
	pa := a.Prefix()
	pb := b.Prefix()
	if !pa.IsValid() || !pb.IsValid() {
		return false
	}
	return pa.Overlaps(pb)
}

// ValidateSubnet runs the addressing invariants of a subnet record: range
// inside network and ordered, gateway inside network.
func ValidateSubnet(s Subnet) error {
	network := s.Network.String()
	if err := ValidateIPRange(s.RangeStart.String(), s.RangeEnd.String(), network); err != nil {
		return err
	}
	if !s.Gateway.IsValid() {
		return fmt.Errorf("%w: gateway", ErrInvalidAddress)
	}
	return addrUsable(s.Network.Prefix(), s.Gateway.Addr())
}
