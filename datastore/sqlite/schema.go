package sqlite

var tables = map[string]string{
	"dhcp_subnet": `CREATE TABLE IF NOT EXISTS dhcp_subnet(
id TEXT PRIMARY KEY,
name TEXT NOT NULL,
network TEXT NOT NULL,
range_start TEXT NOT NULL,
range_end TEXT NOT NULL,
gateway TEXT NOT NULL,
dns_servers TEXT NOT NULL DEFAULT '',
domain_name TEXT NOT NULL DEFAULT '',
interface TEXT NOT NULL,
lease_time INTEGER NOT NULL DEFAULT 86400,
max_lease_time INTEGER NOT NULL DEFAULT 172800,
enabled INTEGER NOT NULL DEFAULT 1,
created_at TIMESTAMP NOT NULL
)`,
	"dhcp_host": `CREATE TABLE IF NOT EXISTS dhcp_host(
id TEXT PRIMARY KEY,
subnet_id TEXT NOT NULL,
hostname TEXT NOT NULL,
mac_address TEXT NOT NULL,
ip_address TEXT NOT NULL,
description TEXT NOT NULL DEFAULT '',
created_at TIMESTAMP NOT NULL,
UNIQUE(subnet_id, mac_address),
UNIQUE(subnet_id, ip_address),
FOREIGN KEY(subnet_id) REFERENCES dhcp_subnet(id) ON DELETE CASCADE
)`,
	"dhcp_option": `CREATE TABLE IF NOT EXISTS dhcp_option(
id TEXT PRIMARY KEY,
subnet_id TEXT,
option_name TEXT NOT NULL,
option_value TEXT NOT NULL,
FOREIGN KEY(subnet_id) REFERENCES dhcp_subnet(id) ON DELETE CASCADE
)`,
}
