package dhcpd

import (
	"errors"
	"testing"

	"github.com/lovi-cloud/lyra/types"
)

func TestIPInSubnetBoundaries(t *testing.T) {
	tests := []struct {
		ip      string
		network string
		want    bool
	}{
		{"10.0.0.1", "10.0.0.0/24", true},
		{"10.0.0.254", "10.0.0.0/24", true},
		// Network and broadcast addresses are not usable.
		{"10.0.0.0", "10.0.0.0/24", false},
		{"10.0.0.255", "10.0.0.0/24", false},
		{"10.0.1.1", "10.0.0.0/24", false},
		// /31 point-to-point links treat both addresses as usable.
		{"10.0.0.0", "10.0.0.0/31", true},
		{"10.0.0.1", "10.0.0.0/31", true},
		{"not-an-ip", "10.0.0.0/24", false},
		{"10.0.0.1", "not-a-cidr", false},
	}
	for _, tt := range tests {
		if got := ValidateIPInSubnet(tt.ip, tt.network); got != tt.want {
			t.Errorf("ValidateIPInSubnet(%q, %q) = %v, want %v", tt.ip, tt.network, got, tt.want)
		}
	}
}

func TestValidateIPRange(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		network string
		wantErr error
	}{
		{"valid", "192.168.1.100", "192.168.1.200", "192.168.1.0/24", nil},
		{"single address", "192.168.1.100", "192.168.1.100", "192.168.1.0/24", nil},
		{"start after end", "192.168.1.200", "192.168.1.100", "192.168.1.0/24", ErrInvalidRange},
		{"start outside", "192.168.2.100", "192.168.1.200", "192.168.1.0/24", ErrOutOfSubnet},
		{"end outside", "192.168.1.100", "192.168.2.200", "192.168.1.0/24", ErrOutOfSubnet},
		{"bad start", "nope", "192.168.1.200", "192.168.1.0/24", ErrInvalidAddress},
		{"bad end", "192.168.1.100", "nope", "192.168.1.0/24", ErrInvalidAddress},
		{"bad network", "192.168.1.100", "192.168.1.200", "nope", ErrInvalidAddress},
		{"start is network address", "192.168.1.0", "192.168.1.200", "192.168.1.0/24", ErrOutOfSubnet},
		{"end is broadcast", "192.168.1.100", "192.168.1.255", "192.168.1.0/24", ErrOutOfSubnet},
		{"ipv6 network", "2001:db8::1", "2001:db8::2", "2001:db8::/64", ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIPRange(tt.start, tt.end, tt.network)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMAC(t *testing.T) {
	valid := []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", "00:11:22:33:44:55"}
	for _, mac := range valid {
		if !ValidateMAC(mac) {
			t.Errorf("ValidateMAC(%q) = false, want true", mac)
		}
	}
	invalid := []string{"AA:BB:CC:DD:EE", "GG:BB:CC:DD:EE:FF", "aabb.ccdd.eeff", "aa:bb:cc:dd:ee:ff:00:11", ""}
	for _, mac := range invalid {
		if ValidateMAC(mac) {
			t.Errorf("ValidateMAC(%q) = true, want false", mac)
		}
	}
}

func TestCanonicalMAC(t *testing.T) {
	for _, input := range []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff"} {
		mac, err := CanonicalMAC(input)
		if err != nil {
			t.Fatalf("CanonicalMAC(%q): %v", input, err)
		}
		if got := mac.String(); got != "aa:bb:cc:dd:ee:ff" {
			t.Errorf("CanonicalMAC(%q) = %q, want aa:bb:cc:dd:ee:ff", input, got)
		}
	}

	if _, err := CanonicalMAC("GG:BB:CC:DD:EE:FF"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestSubnetsOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"10.0.0.0/24", "10.0.0.0/24", true},
		{"10.0.0.0/16", "10.0.1.0/24", true},
		{"10.0.0.0/24", "10.0.1.0/24", false},
		{"192.168.1.0/24", "10.0.0.0/8", false},
	}
	for _, tt := range tests {
		a, err := types.ParseCIDR(tt.a)
		if err != nil {
			t.Fatal(err)
		}
		b, err := types.ParseCIDR(tt.b)
		if err != nil {
			t.Fatal(err)
		}
		if got := SubnetsOverlap(*a, *b); got != tt.want {
			t.Errorf("SubnetsOverlap(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := SubnetsOverlap(*b, *a); got != tt.want {
			t.Errorf("SubnetsOverlap(%s, %s) = %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestValidateSubnet(t *testing.T) {
	s := testSubnet(t, "office", "192.168.1.0/24", "192.168.1.100", "192.168.1.200", "192.168.1.1")
	if err := ValidateSubnet(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := s
	gw, err := types.ParseIP("192.168.2.1")
	if err != nil {
		t.Fatal(err)
	}
	bad.Gateway = *gw
	if err := ValidateSubnet(bad); !errors.Is(err, ErrOutOfSubnet) {
		t.Fatalf("expected ErrOutOfSubnet for gateway, got %v", err)
	}
}
