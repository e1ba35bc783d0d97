package dhcpd

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/lovi-cloud/lyra/types"
)

// dhcpd writes lease timestamps as "weekday YYYY/MM/DD HH:MM:SS" in UTC.
const leaseTimeLayout = "2006/01/02 15:04:05"

// ParseLeases scans the dhcpd.leases format: a sequence of
// "lease <ip> { ... }" blocks. The daemon appends a new block for every
// state change, so the file may hold several blocks per address; the most
// recently declared block wins. Records keep the file order of each
// address's first appearance.
//
// The file is daemon-owned and may be mid-write when read, so the parser is
// tolerant: unrecognized clauses are skipped, malformed timestamps leave the
// field unset, and an unterminated trailing block is discarded rather than
// emitted as partial data. An empty input yields an empty slice.
func ParseLeases(r io.Reader, now time.Time) ([]Lease, error) {
	var (
		leases  []Lease
		index   = make(map[string]int)
		current *Lease
		depth   int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if current == nil {
			if ip, ok := leaseHeader(line); ok {
				current = &Lease{IPAddress: ip}
				depth = 1
			}
			// Anything else at the top level (server-duid, failover
			// blocks, future clauses) is ignored.
			continue
		}

		if strings.HasSuffix(line, "{") {
			depth++
			continue
		}
		if line == "}" {
			depth--
			if depth > 0 {
				continue
			}
			finishLease(*current, now, &leases, index)
			current = nil
			continue
		}
		if depth == 1 {
			parseClause(current, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	// A non-nil current here is a truncated trailing block: drop it.
	return leases, nil
}

func leaseHeader(line string) (types.IP, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "lease" || fields[len(fields)-1] != "{" {
		return types.IP{}, false
	}
	ip, err := types.ParseIP(fields[1])
	if err != nil {
		return types.IP{}, false
	}
	return *ip, true
}

func parseClause(l *Lease, line string) {
	line = strings.TrimSuffix(line, ";")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "starts":
		if t := parseLeaseTime(fields[1:]); t != nil {
			l.Starts = t
		}
	case "ends":
		if t := parseLeaseTime(fields[1:]); t != nil {
			l.Ends = t
		}
	case "binding":
		// "binding state <x>"; "next binding state" starts with "next"
		// and is skipped by the default case.
		if len(fields) == 3 && fields[1] == "state" {
			l.State = LeaseState(fields[2])
		}
	case "hardware":
		if len(fields) == 3 && fields[1] == "ethernet" {
			if mac, err := types.ParseMAC(fields[2]); err == nil {
				l.MACAddress = mac
			}
		}
	case "client-hostname":
		l.Hostname = strings.Trim(strings.Join(fields[1:], " "), `"`)
	}
}

// parseLeaseTime handles "<weekday> YYYY/MM/DD HH:MM:SS" and "never".
// Anything malformed returns nil so the field stays unset.
func parseLeaseTime(fields []string) *time.Time {
	if len(fields) == 1 && fields[0] == "never" {
		return nil
	}
	if len(fields) != 3 {
		return nil
	}
	t, err := time.ParseInLocation(leaseTimeLayout, fields[1]+" "+fields[2], time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// finishLease derives the final state and commits the block, replacing any
// earlier block for the same address in place.
func finishLease(l Lease, now time.Time, leases *[]Lease, index map[string]int) {
	switch l.State {
	case LeaseFree, LeaseExpired:
		// Explicit binding-state token is authoritative.
	case LeaseActive:
		if l.Ends != nil && l.Ends.Before(now) {
			l.State = LeaseExpired
		}
	default:
		// Unknown or absent token: fall back to time comparison.
		if l.Ends != nil && l.Ends.Before(now) {
			l.State = LeaseExpired
		} else {
			l.State = LeaseActive
		}
	}

	key := l.IPAddress.String()
	if i, ok := index[key]; ok {
		(*leases)[i] = l
		return
	}
	index[key] = len(*leases)
	*leases = append(*leases, l)
}

// LeasesInNetwork filters leases to those whose address lies within the
// given network, annotating each with the subnet name.
func LeasesInNetwork(leases []Lease, network types.IPNet, subnetName string) []Lease {
	var out []Lease
	for _, l := range leases {
		if !network.Prefix().Contains(l.IPAddress.Addr()) {
			continue
		}
		l.SubnetName = subnetName
		out = append(out, l)
	}
	return out
}
