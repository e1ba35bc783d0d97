package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	uuid "github.com/satori/go.uuid"

	"github.com/lovi-cloud/lyra/datastore"
	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/types"
)

// SQLite is
type SQLite struct {
	db *sqlx.DB
}

// New opens the database and creates the schema. Foreign key enforcement
// is per-connection in sqlite, so it must be requested through the DSN
// (_foreign_keys=on) rather than a one-off PRAGMA.
func New(ctx context.Context, dsn string) (datastore.Datastore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect sqlite: %w", err)
	}
	if err := createTable(db); err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func createTable(db *sqlx.DB) error {
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create dhcp tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connections.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type subnetRow struct {
	ID           uuid.UUID   `db:"id"`
	Name         string      `db:"name"`
	Network      types.IPNet `db:"network"`
	RangeStart   types.IP    `db:"range_start"`
	RangeEnd     types.IP    `db:"range_end"`
	Gateway      types.IP    `db:"gateway"`
	DNSServers   string      `db:"dns_servers"`
	DomainName   string      `db:"domain_name"`
	Interface    string      `db:"interface"`
	LeaseTime    int         `db:"lease_time"`
	MaxLeaseTime int         `db:"max_lease_time"`
	Enabled      bool        `db:"enabled"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r subnetRow) subnet() (dhcpd.Subnet, error) {
	s := dhcpd.Subnet{
		ID:           r.ID,
		Name:         r.Name,
		Network:      r.Network,
		RangeStart:   r.RangeStart,
		RangeEnd:     r.RangeEnd,
		Gateway:      r.Gateway,
		DomainName:   r.DomainName,
		Interface:    r.Interface,
		LeaseTime:    r.LeaseTime,
		MaxLeaseTime: r.MaxLeaseTime,
		Enabled:      r.Enabled,
		CreatedAt:    r.CreatedAt,
	}
	for _, part := range strings.Split(r.DNSServers, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ip, err := types.ParseIP(part)
		if err != nil {
			return s, fmt.Errorf("corrupt dns_servers for subnet %s: %w", r.ID, err)
		}
		s.DNSServers = append(s.DNSServers, *ip)
	}
	return s, nil
}

func joinDNS(servers []types.IP) string {
	parts := make([]string, len(servers))
	for i, ip := range servers {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ", ")
}

// ListSubnets is
func (s *SQLite) ListSubnets(ctx context.Context) ([]dhcpd.Subnet, error) {
	query := `SELECT id, name, network, range_start, range_end, gateway, dns_servers, domain_name, interface, lease_time, max_lease_time, enabled, created_at FROM dhcp_subnet ORDER BY created_at, id`
	var rows []subnetRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list subnets: %w", err)
	}
	subnets := make([]dhcpd.Subnet, 0, len(rows))
	for _, r := range rows {
		subnet, err := r.subnet()
		if err != nil {
			return nil, err
		}
		subnets = append(subnets, subnet)
	}
	return subnets, nil
}

// GetSubnet is
func (s *SQLite) GetSubnet(ctx context.Context, id uuid.UUID) (*dhcpd.Subnet, error) {
	query := `SELECT id, name, network, range_start, range_end, gateway, dns_servers, domain_name, interface, lease_time, max_lease_time, enabled, created_at FROM dhcp_subnet WHERE id = ?`
	var row subnetRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, datastore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subnet: %w", err)
	}
	subnet, err := row.subnet()
	if err != nil {
		return nil, err
	}
	return &subnet, nil
}

// CreateSubnet is
func (s *SQLite) CreateSubnet(ctx context.Context, subnet dhcpd.Subnet) (*dhcpd.Subnet, error) {
	if subnet.ID == uuid.Nil {
		subnet.ID = uuid.NewV4()
	}
	if subnet.CreatedAt.IsZero() {
		subnet.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO dhcp_subnet(id, name, network, range_start, range_end, gateway, dns_servers, domain_name, interface, lease_time, max_lease_time, enabled, created_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		subnet.ID, subnet.Name, subnet.Network, subnet.RangeStart, subnet.RangeEnd, subnet.Gateway,
		joinDNS(subnet.DNSServers), subnet.DomainName, subnet.Interface,
		subnet.LeaseTime, subnet.MaxLeaseTime, subnet.Enabled, subnet.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet: %w", err)
	}
	return &subnet, nil
}

// UpdateSubnet is
func (s *SQLite) UpdateSubnet(ctx context.Context, subnet dhcpd.Subnet) (*dhcpd.Subnet, error) {
	query := `UPDATE dhcp_subnet SET name = ?, network = ?, range_start = ?, range_end = ?, gateway = ?, dns_servers = ?, domain_name = ?, interface = ?, lease_time = ?, max_lease_time = ?, enabled = ? WHERE id = ?`
	ret, err := s.db.ExecContext(ctx, query,
		subnet.Name, subnet.Network, subnet.RangeStart, subnet.RangeEnd, subnet.Gateway,
		joinDNS(subnet.DNSServers), subnet.DomainName, subnet.Interface,
		subnet.LeaseTime, subnet.MaxLeaseTime, subnet.Enabled, subnet.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update subnet: %w", err)
	}
	if n, err := ret.RowsAffected(); err == nil && n == 0 {
		return nil, datastore.ErrNotFound
	}
	return s.GetSubnet(ctx, subnet.ID)
}

// DeleteSubnet is
func (s *SQLite) DeleteSubnet(ctx context.Context, id uuid.UUID) error {
	ret, err := s.db.ExecContext(ctx, `DELETE FROM dhcp_subnet WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subnet: %w", err)
	}
	if n, err := ret.RowsAffected(); err == nil && n == 0 {
		return datastore.ErrNotFound
	}
	return nil
}

// ListHosts is
func (s *SQLite) ListHosts(ctx context.Context, subnetID uuid.UUID) ([]dhcpd.Host, error) {
	query := `SELECT id, subnet_id, hostname, mac_address, ip_address, description, created_at FROM dhcp_host WHERE subnet_id = ? ORDER BY created_at, id`
	var hosts []dhcpd.Host
	if err := s.db.SelectContext(ctx, &hosts, query, subnetID); err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	return hosts, nil
}

// ListAllHosts is
func (s *SQLite) ListAllHosts(ctx context.Context) ([]dhcpd.Host, error) {
	query := `SELECT id, subnet_id, hostname, mac_address, ip_address, description, created_at FROM dhcp_host ORDER BY created_at, id`
	var hosts []dhcpd.Host
	if err := s.db.SelectContext(ctx, &hosts, query); err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	return hosts, nil
}

// GetHost is
func (s *SQLite) GetHost(ctx context.Context, subnetID, hostID uuid.UUID) (*dhcpd.Host, error) {
	query := `SELECT id, subnet_id, hostname, mac_address, ip_address, description, created_at FROM dhcp_host WHERE id = ? AND subnet_id = ?`
	var host dhcpd.Host
	err := s.db.GetContext(ctx, &host, query, hostID, subnetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, datastore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	return &host, nil
}

// CreateHost maps unique-constraint violations on (subnet, mac) and
// (subnet, ip) to ErrDuplicateReservation.
func (s *SQLite) CreateHost(ctx context.Context, host dhcpd.Host) (*dhcpd.Host, error) {
	if host.ID == uuid.Nil {
		host.ID = uuid.NewV4()
	}
	if host.CreatedAt.IsZero() {
		host.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO dhcp_host(id, subnet_id, hostname, mac_address, ip_address, description, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		host.ID, host.SubnetID, host.Hostname, host.MACAddress, host.IPAddress, host.Description, host.CreatedAt)
	if isUniqueViolation(err) {
		return nil, datastore.ErrDuplicateReservation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}
	return &host, nil
}

// UpdateHost is
func (s *SQLite) UpdateHost(ctx context.Context, host dhcpd.Host) (*dhcpd.Host, error) {
	query := `UPDATE dhcp_host SET hostname = ?, mac_address = ?, ip_address = ?, description = ? WHERE id = ? AND subnet_id = ?`
	ret, err := s.db.ExecContext(ctx, query,
		host.Hostname, host.MACAddress, host.IPAddress, host.Description, host.ID, host.SubnetID)
	if isUniqueViolation(err) {
		return nil, datastore.ErrDuplicateReservation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update host: %w", err)
	}
	if n, err := ret.RowsAffected(); err == nil && n == 0 {
		return nil, datastore.ErrNotFound
	}
	return s.GetHost(ctx, host.SubnetID, host.ID)
}

// DeleteHost is
func (s *SQLite) DeleteHost(ctx context.Context, subnetID, hostID uuid.UUID) error {
	ret, err := s.db.ExecContext(ctx, `DELETE FROM dhcp_host WHERE id = ? AND subnet_id = ?`, hostID, subnetID)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	if n, err := ret.RowsAffected(); err == nil && n == 0 {
		return datastore.ErrNotFound
	}
	return nil
}

type optionRow struct {
	ID       uuid.UUID      `db:"id"`
	SubnetID sql.NullString `db:"subnet_id"`
	Name     string         `db:"option_name"`
	Value    string         `db:"option_value"`
}

func (r optionRow) option() (dhcpd.Option, error) {
	o := dhcpd.Option{ID: r.ID, Name: r.Name, Value: r.Value}
	if r.SubnetID.Valid {
		id, err := uuid.FromString(r.SubnetID.String)
		if err != nil {
			return o, fmt.Errorf("corrupt subnet_id for option %s: %w", r.ID, err)
		}
		o.SubnetID = &id
	}
	return o, nil
}

// ListOptions is
func (s *SQLite) ListOptions(ctx context.Context, subnetID *uuid.UUID) ([]dhcpd.Option, error) {
	var (
		rows []optionRow
		err  error
	)
	if subnetID == nil {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, subnet_id, option_name, option_value FROM dhcp_option WHERE subnet_id IS NULL ORDER BY option_name, id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT id, subnet_id, option_name, option_value FROM dhcp_option WHERE subnet_id = ? ORDER BY option_name, id`, *subnetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	return optionRows(rows)
}

// ListAllOptions is
func (s *SQLite) ListAllOptions(ctx context.Context) ([]dhcpd.Option, error) {
	var rows []optionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, subnet_id, option_name, option_value FROM dhcp_option ORDER BY option_name, id`); err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	return optionRows(rows)
}

func optionRows(rows []optionRow) ([]dhcpd.Option, error) {
	options := make([]dhcpd.Option, 0, len(rows))
	for _, r := range rows {
		o, err := r.option()
		if err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, nil
}

// CreateOption is
func (s *SQLite) CreateOption(ctx context.Context, option dhcpd.Option) (*dhcpd.Option, error) {
	if option.ID == uuid.Nil {
		option.ID = uuid.NewV4()
	}
	var subnetID interface{}
	if option.SubnetID != nil {
		subnetID = *option.SubnetID
	}
	query := `INSERT INTO dhcp_option(id, subnet_id, option_name, option_value) VALUES(?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, option.ID, subnetID, option.Name, option.Value); err != nil {
		return nil, fmt.Errorf("failed to create option: %w", err)
	}
	return &option, nil
}

// DeleteOption is
func (s *SQLite) DeleteOption(ctx context.Context, id uuid.UUID) error {
	ret, err := s.db.ExecContext(ctx, `DELETE FROM dhcp_option WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete option: %w", err)
	}
	if n, err := ret.RowsAffected(); err == nil && n == 0 {
		return datastore.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
