// Package dhcpd is the core engine for managing an ISC DHCP server:
// address validation, dhcpd.conf generation and dhcpd.leases parsing.
package dhcpd

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/lovi-cloud/lyra/types"
)

// Subnet is a DHCP scope definition.
type Subnet struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	Network      types.IPNet `db:"network" json:"network"`
	RangeStart   types.IP    `db:"range_start" json:"range_start"`
	RangeEnd     types.IP    `db:"range_end" json:"range_end"`
	Gateway      types.IP    `db:"gateway" json:"gateway"`
	DNSServers   []types.IP  `db:"-" json:"dns_servers"`
	DomainName   string      `db:"domain_name" json:"domain_name,omitempty"`
	Interface    string      `db:"interface" json:"interface"`
	LeaseTime    int         `db:"lease_time" json:"lease_time"`
	MaxLeaseTime int         `db:"max_lease_time" json:"max_lease_time"`
	Enabled      bool        `db:"enabled" json:"enabled"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Host is a static reservation (MAC to IP binding) owned by a subnet.
type Host struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	SubnetID    uuid.UUID          `db:"subnet_id" json:"subnet_id"`
	Hostname    string             `db:"hostname" json:"hostname"`
	MACAddress  types.HardwareAddr `db:"mac_address" json:"mac_address"`
	IPAddress   types.IP           `db:"ip_address" json:"ip_address"`
	Description string             `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// Option is a DHCP option emitted verbatim into the configuration.
// A nil SubnetID means the option is global.
type Option struct {
	ID       uuid.UUID  `db:"id" json:"id"`
	SubnetID *uuid.UUID `db:"subnet_id" json:"subnet_id,omitempty"`
	Name     string     `db:"option_name" json:"option_name"`
	Value    string     `db:"option_value" json:"option_value"`
}

// LeaseState is the derived state of a parsed lease.
type LeaseState string

// Lease states. Active leases are currently bound, free leases were
// explicitly released back to the pool, expired leases ran out the clock
// without an explicit state change.
const (
	LeaseActive  LeaseState = "active"
	LeaseFree    LeaseState = "free"
	LeaseExpired LeaseState = "expired"
)

// Lease is a record parsed from the daemon's lease database. It is derived,
// never persisted: every parse produces fresh records.
type Lease struct {
	IPAddress  types.IP            `json:"ip_address"`
	MACAddress *types.HardwareAddr `json:"mac_address,omitempty"`
	Hostname   string              `json:"hostname,omitempty"`
	Starts     *time.Time          `json:"starts,omitempty"`
	Ends       *time.Time          `json:"ends,omitempty"`
	State      LeaseState          `json:"state"`
	SubnetName string              `json:"subnet_name,omitempty"`
}

// ServiceState is the observed state of the external daemon.
type ServiceState string

// Observed daemon states. Unknown means the service manager query itself
// failed, not that the daemon is stopped.
const (
	ServiceRunning ServiceState = "running"
	ServiceStopped ServiceState = "stopped"
	ServiceUnknown ServiceState = "unknown"
)

// ServiceStatus is the result of a status query against the service manager.
type ServiceStatus struct {
	State   ServiceState `json:"state"`
	Running bool         `json:"running"`
	Enabled bool         `json:"enabled"`
	Uptime  string       `json:"uptime,omitempty"`
}
