package httpd

import (
	uuid "github.com/satori/go.uuid"

	"github.com/lovi-cloud/lyra/dhcpd"
)

// SubnetCreate is the request body for creating a subnet. Addresses arrive
// as strings and are validated before they become typed values.
type SubnetCreate struct {
	Name         string `json:"name"`
	Network      string `json:"network"`
	RangeStart   string `json:"range_start"`
	RangeEnd     string `json:"range_end"`
	Gateway      string `json:"gateway"`
	DNSServers   string `json:"dns_servers"`
	DomainName   string `json:"domain_name"`
	Interface    string `json:"interface"`
	LeaseTime    int    `json:"lease_time"`
	MaxLeaseTime int    `json:"max_lease_time"`
	Enabled      *bool  `json:"enabled"`
}

// SubnetUpdate is a partial update; nil fields keep their current value.
type SubnetUpdate struct {
	Name         *string `json:"name"`
	RangeStart   *string `json:"range_start"`
	RangeEnd     *string `json:"range_end"`
	Gateway      *string `json:"gateway"`
	DNSServers   *string `json:"dns_servers"`
	DomainName   *string `json:"domain_name"`
	Interface    *string `json:"interface"`
	LeaseTime    *int    `json:"lease_time"`
	MaxLeaseTime *int    `json:"max_lease_time"`
	Enabled      *bool   `json:"enabled"`
}

// SubnetRead is a subnet enriched with reservation and lease counts.
type SubnetRead struct {
	dhcpd.Subnet
	HostCount    int `json:"host_count"`
	ActiveLeases int `json:"active_leases"`
}

// HostCreate is the request body for creating a static reservation.
type HostCreate struct {
	Hostname    string `json:"hostname"`
	MACAddress  string `json:"mac_address"`
	IPAddress   string `json:"ip_address"`
	Description string `json:"description"`
}

// HostUpdate is a partial update; nil fields keep their current value.
type HostUpdate struct {
	Hostname    *string `json:"hostname"`
	MACAddress  *string `json:"mac_address"`
	IPAddress   *string `json:"ip_address"`
	Description *string `json:"description"`
}

// OptionCreate is the request body for creating an option. A nil SubnetID
// creates a global option.
type OptionCreate struct {
	SubnetID *uuid.UUID `json:"subnet_id"`
	Name     string     `json:"option_name"`
	Value    string     `json:"option_value"`
}

// StatusRead is the aggregated service status response.
type StatusRead struct {
	dhcpd.ServiceStatus
	TotalSubnets int   `json:"total_subnets"`
	TotalHosts   int   `json:"total_hosts"`
	TotalLeases  int   `json:"total_leases"`
	ConfigValid  *bool `json:"config_valid,omitempty"`
}
