package dhcpd

import (
	"fmt"
	"net"
	"sort"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// ConfHeader marks the generated file as machine-managed. It is the first
// thing in every generated config and in the initial config seeded at
// install time.
const ConfHeader = `# DHCP Server Configuration
# Managed by lyra - do not edit, changes will be overwritten
`

// GenerateConf renders the dhcpd.conf text for the given records. Disabled
// subnets are omitted entirely. Output is byte-identical for identically
// valued inputs regardless of slice order: global options are sorted by name,
// subnets by network address, hosts by canonical MAC, per-subnet options by
// name.
//
// Generation never fails. Records that bypassed validation still produce a
// structurally valid file; the daemon's own syntax check is the authority
// downstream. Duplicate MAC or IP reservations within a subnet are surfaced
// as warning comments on the offending stanzas.
func GenerateConf(subnets []Subnet, hosts []Host, options []Option) string {
	var b strings.Builder
	b.WriteString(ConfHeader)

	b.WriteString("\nauthoritative;\n")

	var global []Option
	scoped := make(map[uuid.UUID][]Option)
	for _, o := range options {
		if o.SubnetID == nil {
			global = append(global, o)
		} else {
			scoped[*o.SubnetID] = append(scoped[*o.SubnetID], o)
		}
	}
	if len(global) > 0 {
		b.WriteString("\n")
		writeOptions(&b, "", global)
	}

	byMAC := make(map[uuid.UUID][]Host)
	for _, h := range hosts {
		byMAC[h.SubnetID] = append(byMAC[h.SubnetID], h)
	}

	enabled := make([]Subnet, 0, len(subnets))
	for _, s := range subnets {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		b.WriteString("\n# No subnets configured.\n")
		return b.String()
	}
	sort.Slice(enabled, func(i, j int) bool {
		a, c := enabled[i].Network.Prefix(), enabled[j].Network.Prefix()
		if a.Addr() != c.Addr() {
			return a.Addr().Less(c.Addr())
		}
		return a.Bits() < c.Bits()
	})

	for _, s := range enabled {
		b.WriteString("\n")
		writeSubnet(&b, s, byMAC[s.ID], scoped[s.ID])
	}
	return b.String()
}

func writeSubnet(b *strings.Builder, s Subnet, hosts []Host, options []Option) {
	fmt.Fprintf(b, "# Subnet: %s\n", s.Name)
	fmt.Fprintf(b, "subnet %s netmask %s {\n", s.Network.Prefix().Addr(), netmask(s.Network.Prefix().Bits()))
	fmt.Fprintf(b, "  range %s %s;\n", s.RangeStart, s.RangeEnd)
	fmt.Fprintf(b, "  option routers %s;\n", s.Gateway)
	if len(s.DNSServers) > 0 {
		servers := make([]string, len(s.DNSServers))
		for i, d := range s.DNSServers {
			servers[i] = d.String()
		}
		fmt.Fprintf(b, "  option domain-name-servers %s;\n", strings.Join(servers, ", "))
	}
	if s.DomainName != "" {
		// domain-name is a string option, always quoted.
		fmt.Fprintf(b, "  option domain-name \"%s\";\n", escapeString(s.DomainName))
	}
	fmt.Fprintf(b, "  default-lease-time %d;\n", s.LeaseTime)
	fmt.Fprintf(b, "  max-lease-time %d;\n", s.MaxLeaseTime)
	writeOptions(b, "  ", options)

	sort.Slice(hosts, func(i, j int) bool {
		if a, c := hosts[i].MACAddress.String(), hosts[j].MACAddress.String(); a != c {
			return a < c
		}
		return hosts[i].IPAddress.String() < hosts[j].IPAddress.String()
	})
	seenMAC := make(map[string]bool)
	seenIP := make(map[string]bool)
	for _, h := range hosts {
		mac := h.MACAddress.String()
		ip := h.IPAddress.String()
		b.WriteString("\n")
		if seenMAC[mac] {
			fmt.Fprintf(b, "  # warning: duplicate MAC %s in subnet %s\n", mac, s.Name)
		}
		if seenIP[ip] {
			fmt.Fprintf(b, "  # warning: duplicate IP %s in subnet %s\n", ip, s.Name)
		}
		seenMAC[mac] = true
		seenIP[ip] = true
		fmt.Fprintf(b, "  # %s\n", h.Hostname)
		fmt.Fprintf(b, "  host %s {\n", h.Hostname)
		fmt.Fprintf(b, "    hardware ethernet %s;\n", mac)
		fmt.Fprintf(b, "    fixed-address %s;\n", ip)
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")
}

func writeOptions(b *strings.Builder, indent string, options []Option) {
	sorted := make([]Option, len(options))
	copy(sorted, options)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Value < sorted[j].Value
	})
	for _, o := range sorted {
		fmt.Fprintf(b, "%soption %s %s;\n", indent, o.Name, quoteValue(o.Value))
	}
}

// quoteValue embeds an option value using dhcpd's string convention: values
// containing a quote, backslash, semicolon or whitespace are emitted as a
// quoted string with backslash escapes, everything else verbatim.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, "\"\\; \t\n") {
		return v
	}
	return `"` + escapeString(v) + `"`
}

func escapeString(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}

func netmask(bits int) string {
	return net.IP(net.CIDRMask(bits, 32)).String()
}

// GenerateDefaults renders the /etc/default/isc-dhcp-server contents binding
// the daemon to the interfaces of the enabled subnets. Interfaces are
// deduplicated and sorted for deterministic output.
func GenerateDefaults(subnets []Subnet) string {
	seen := make(map[string]bool)
	var ifaces []string
	for _, s := range subnets {
		if !s.Enabled || s.Interface == "" || seen[s.Interface] {
			continue
		}
		seen[s.Interface] = true
		ifaces = append(ifaces, s.Interface)
	}
	sort.Strings(ifaces)
	return fmt.Sprintf("INTERFACESv4=%q\nINTERFACESv6=\"\"\n", strings.Join(ifaces, " "))
}
