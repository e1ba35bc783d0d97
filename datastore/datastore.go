package datastore

import (
	"context"
	"errors"

	uuid "github.com/satori/go.uuid"

	"github.com/lovi-cloud/lyra/dhcpd"
)

// Datastore errors.
var (
	// ErrNotFound means the record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateReservation means the MAC or IP is already reserved
	// within the subnet.
	ErrDuplicateReservation = errors.New("mac or ip already reserved in subnet")
)

// Datastore is an interface for lyra to perform CRUD operations on subnets,
// static reservations and options. It is an external collaborator of the
// core: the config generator and lease parser never touch it.
type Datastore interface {
	ListSubnets(ctx context.Context) ([]dhcpd.Subnet, error)
	GetSubnet(ctx context.Context, id uuid.UUID) (*dhcpd.Subnet, error)
	CreateSubnet(ctx context.Context, subnet dhcpd.Subnet) (*dhcpd.Subnet, error)
	UpdateSubnet(ctx context.Context, subnet dhcpd.Subnet) (*dhcpd.Subnet, error)
	// DeleteSubnet removes the subnet and, through ownership, its hosts and
	// scoped options.
	DeleteSubnet(ctx context.Context, id uuid.UUID) error

	ListHosts(ctx context.Context, subnetID uuid.UUID) ([]dhcpd.Host, error)
	ListAllHosts(ctx context.Context) ([]dhcpd.Host, error)
	GetHost(ctx context.Context, subnetID, hostID uuid.UUID) (*dhcpd.Host, error)
	CreateHost(ctx context.Context, host dhcpd.Host) (*dhcpd.Host, error)
	UpdateHost(ctx context.Context, host dhcpd.Host) (*dhcpd.Host, error)
	DeleteHost(ctx context.Context, subnetID, hostID uuid.UUID) error

	// ListOptions returns global options when subnetID is nil, otherwise
	// the options scoped to that subnet.
	ListOptions(ctx context.Context, subnetID *uuid.UUID) ([]dhcpd.Option, error)
	ListAllOptions(ctx context.Context) ([]dhcpd.Option, error)
	CreateOption(ctx context.Context, option dhcpd.Option) (*dhcpd.Option, error)
	DeleteOption(ctx context.Context, id uuid.UUID) error

	Close() error
}
