package gohttpd

import (
	"context"
	"net/http"
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/httpd"
	"github.com/lovi-cloud/lyra/types"
)

// desiredState loads the full declarative state handed to the controller.
func (g *GoHTTPd) desiredState(ctx context.Context) ([]dhcpd.Subnet, []dhcpd.Host, []dhcpd.Option, error) {
	subnets, err := g.ds.ListSubnets(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	hosts, err := g.ds.ListAllHosts(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	options, err := g.ds.ListAllOptions(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return subnets, hosts, options, nil
}

func (g *GoHTTPd) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := httpd.StatusRead{ServiceStatus: g.ctrl.Status(ctx)}

	subnets, hosts, _, err := g.desiredState(ctx)
	if err != nil {
		g.fail(w, err)
		return
	}
	status.TotalSubnets = len(subnets)
	status.TotalHosts = len(hosts)

	if leases, err := g.ctrl.Leases(subnets); err == nil {
		status.TotalLeases = len(leases)
	}
	if ok, _, err := g.ctrl.Validate(ctx, g.ctrl.ConfPath()); err == nil {
		status.ConfigValid = &ok
	}
	g.writeJSON(w, http.StatusOK, status)
}

func (g *GoHTTPd) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	ifaces, err := g.ctrl.PhysicalInterfaces()
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string][]string{"interfaces": ifaces})
}

func (g *GoHTTPd) handleApply(w http.ResponseWriter, r *http.Request) {
	g.reconcile(w, r, g.ctrl.Apply)
}

func (g *GoHTTPd) handleStart(w http.ResponseWriter, r *http.Request) {
	g.reconcile(w, r, g.ctrl.Start)
}

func (g *GoHTTPd) handleRestart(w http.ResponseWriter, r *http.Request) {
	g.reconcile(w, r, g.ctrl.Restart)
}

func (g *GoHTTPd) reconcile(w http.ResponseWriter, r *http.Request, op func(context.Context, []dhcpd.Subnet, []dhcpd.Host, []dhcpd.Option) (string, error)) {
	ctx := r.Context()
	subnets, hosts, options, err := g.desiredState(ctx)
	if err != nil {
		g.fail(w, err)
		return
	}
	msg, err := op(ctx, subnets, hosts, options)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (g *GoHTTPd) handleStop(w http.ResponseWriter, r *http.Request) {
	msg, err := g.ctrl.Stop(r.Context())
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (g *GoHTTPd) handlePreview(w http.ResponseWriter, r *http.Request) {
	subnets, hosts, options, err := g.desiredState(r.Context())
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"config": g.ctrl.Preview(subnets, hosts, options)})
}

func (g *GoHTTPd) handleValidate(w http.ResponseWriter, r *http.Request) {
	ok, msg, err := g.ctrl.Validate(r.Context(), g.ctrl.ConfPath())
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]interface{}{"valid": ok, "message": msg})
}

func (g *GoHTTPd) handleListSubnets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subnets, err := g.ds.ListSubnets(ctx)
	if err != nil {
		g.fail(w, err)
		return
	}
	out := make([]httpd.SubnetRead, 0, len(subnets))
	for _, s := range subnets {
		read, err := g.subnetRead(ctx, s)
		if err != nil {
			g.fail(w, err)
			return
		}
		out = append(out, read)
	}
	g.writeJSON(w, http.StatusOK, out)
}

func (g *GoHTTPd) subnetRead(ctx context.Context, s dhcpd.Subnet) (httpd.SubnetRead, error) {
	hosts, err := g.ds.ListHosts(ctx, s.ID)
	if err != nil {
		return httpd.SubnetRead{}, err
	}
	read := httpd.SubnetRead{Subnet: s, HostCount: len(hosts)}
	if leases, err := g.ctrl.SubnetLeases(s); err == nil {
		for _, l := range leases {
			if l.State == dhcpd.LeaseActive {
				read.ActiveLeases++
			}
		}
	}
	return read, nil
}

func (g *GoHTTPd) handleCreateSubnet(w http.ResponseWriter, r *http.Request) {
	var in httpd.SubnetCreate
	if err := decode(r, &in); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subnet, err := subnetFromCreate(in)
	if err != nil {
		g.fail(w, err)
		return
	}
	created, err := g.ds.CreateSubnet(r.Context(), subnet)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, httpd.SubnetRead{Subnet: *created})
}

func subnetFromCreate(in httpd.SubnetCreate) (dhcpd.Subnet, error) {
	var s dhcpd.Subnet
	network, err := types.ParseCIDR(in.Network)
	if err != nil {
		return s, dhcpd.ErrInvalidAddress
	}
	if err := dhcpd.ValidateIPRange(in.RangeStart, in.RangeEnd, network.String()); err != nil {
		return s, err
	}
	start, _ := types.ParseIP(in.RangeStart)
	end, _ := types.ParseIP(in.RangeEnd)
	gateway, err := types.ParseIP(in.Gateway)
	if err != nil {
		return s, dhcpd.ErrInvalidAddress
	}
	dns, err := parseDNSList(in.DNSServers)
	if err != nil {
		return s, err
	}

	s = dhcpd.Subnet{
		Name:         in.Name,
		Network:      *network,
		RangeStart:   *start,
		RangeEnd:     *end,
		Gateway:      *gateway,
		DNSServers:   dns,
		DomainName:   in.DomainName,
		Interface:    in.Interface,
		LeaseTime:    in.LeaseTime,
		MaxLeaseTime: in.MaxLeaseTime,
		Enabled:      in.Enabled == nil || *in.Enabled,
	}
	if s.LeaseTime <= 0 {
		s.LeaseTime = 86400
	}
	if s.MaxLeaseTime <= 0 {
		s.MaxLeaseTime = 172800
	}
	if err := dhcpd.ValidateSubnet(s); err != nil {
		return s, err
	}
	return s, nil
}

func parseDNSList(list string) ([]types.IP, error) {
	var out []types.IP
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ip, err := types.ParseIP(part)
		if err != nil {
			return nil, dhcpd.ErrInvalidAddress
		}
		out = append(out, *ip)
	}
	return out, nil
}

func (g *GoHTTPd) subnetID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(r.PathValue(name))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (g *GoHTTPd) handleGetSubnet(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	subnet, err := g.ds.GetSubnet(r.Context(), id)
	if err != nil {
		g.fail(w, err)
		return
	}
	read, err := g.subnetRead(r.Context(), *subnet)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, read)
}

func (g *GoHTTPd) handleUpdateSubnet(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	var in httpd.SubnetUpdate
	if err := decode(r, &in); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	subnet, err := g.ds.GetSubnet(ctx, id)
	if err != nil {
		g.fail(w, err)
		return
	}
	if err := applySubnetUpdate(subnet, in); err != nil {
		g.fail(w, err)
		return
	}
	updated, err := g.ds.UpdateSubnet(ctx, *subnet)
	if err != nil {
		g.fail(w, err)
		return
	}
	read, err := g.subnetRead(ctx, *updated)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, read)
}

func applySubnetUpdate(s *dhcpd.Subnet, in httpd.SubnetUpdate) error {
	if in.Name != nil {
		s.Name = *in.Name
	}
	if in.RangeStart != nil {
		ip, err := types.ParseIP(*in.RangeStart)
		if err != nil {
			return dhcpd.ErrInvalidAddress
		}
		s.RangeStart = *ip
	}
	if in.RangeEnd != nil {
		ip, err := types.ParseIP(*in.RangeEnd)
		if err != nil {
			return dhcpd.ErrInvalidAddress
		}
		s.RangeEnd = *ip
	}
	if in.Gateway != nil {
		ip, err := types.ParseIP(*in.Gateway)
		if err != nil {
			return dhcpd.ErrInvalidAddress
		}
		s.Gateway = *ip
	}
	if in.DNSServers != nil {
		dns, err := parseDNSList(*in.DNSServers)
		if err != nil {
			return err
		}
		s.DNSServers = dns
	}
	if in.DomainName != nil {
		s.DomainName = *in.DomainName
	}
	if in.Interface != nil {
		s.Interface = *in.Interface
	}
	if in.LeaseTime != nil {
		s.LeaseTime = *in.LeaseTime
	}
	if in.MaxLeaseTime != nil {
		s.MaxLeaseTime = *in.MaxLeaseTime
	}
	if in.Enabled != nil {
		s.Enabled = *in.Enabled
	}
	return dhcpd.ValidateSubnet(*s)
}

func (g *GoHTTPd) handleDeleteSubnet(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	if err := g.ds.DeleteSubnet(r.Context(), id); err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusNoContent, nil)
}

func (g *GoHTTPd) handleListHosts(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := g.ds.GetSubnet(ctx, id); err != nil {
		g.fail(w, err)
		return
	}
	hosts, err := g.ds.ListHosts(ctx, id)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, hosts)
}

func (g *GoHTTPd) handleCreateHost(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	var in httpd.HostCreate
	if err := decode(r, &in); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	subnet, err := g.ds.GetSubnet(ctx, id)
	if err != nil {
		g.fail(w, err)
		return
	}

	mac, err := dhcpd.CanonicalMAC(in.MACAddress)
	if err != nil {
		g.fail(w, err)
		return
	}
	ip, err := types.ParseIP(in.IPAddress)
	if err != nil {
		g.fail(w, dhcpd.ErrInvalidAddress)
		return
	}
	if !dhcpd.ValidateIPInSubnet(in.IPAddress, subnet.Network.String()) {
		g.fail(w, dhcpd.ErrOutOfSubnet)
		return
	}

	created, err := g.ds.CreateHost(ctx, dhcpd.Host{
		SubnetID:    id,
		Hostname:    in.Hostname,
		MACAddress:  mac,
		IPAddress:   *ip,
		Description: in.Description,
	})
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, created)
}

func (g *GoHTTPd) handleUpdateHost(w http.ResponseWriter, r *http.Request) {
	subnetID, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	hostID, ok := g.subnetID(w, r, "hostID")
	if !ok {
		return
	}
	var in httpd.HostUpdate
	if err := decode(r, &in); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	host, err := g.ds.GetHost(ctx, subnetID, hostID)
	if err != nil {
		g.fail(w, err)
		return
	}

	if in.Hostname != nil {
		host.Hostname = *in.Hostname
	}
	if in.Description != nil {
		host.Description = *in.Description
	}
	if in.MACAddress != nil {
		mac, err := dhcpd.CanonicalMAC(*in.MACAddress)
		if err != nil {
			g.fail(w, err)
			return
		}
		host.MACAddress = mac
	}
	if in.IPAddress != nil {
		subnet, err := g.ds.GetSubnet(ctx, subnetID)
		if err != nil {
			g.fail(w, err)
			return
		}
		if !dhcpd.ValidateIPInSubnet(*in.IPAddress, subnet.Network.String()) {
			g.fail(w, dhcpd.ErrOutOfSubnet)
			return
		}
		ip, err := types.ParseIP(*in.IPAddress)
		if err != nil {
			g.fail(w, dhcpd.ErrInvalidAddress)
			return
		}
		host.IPAddress = *ip
	}

	updated, err := g.ds.UpdateHost(ctx, *host)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, updated)
}

func (g *GoHTTPd) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	subnetID, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	hostID, ok := g.subnetID(w, r, "hostID")
	if !ok {
		return
	}
	if err := g.ds.DeleteHost(r.Context(), subnetID, hostID); err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusNoContent, nil)
}

func (g *GoHTTPd) handleListLeases(w http.ResponseWriter, r *http.Request) {
	subnets, err := g.ds.ListSubnets(r.Context())
	if err != nil {
		g.fail(w, err)
		return
	}
	leases, err := g.ctrl.Leases(subnets)
	if err != nil {
		g.fail(w, err)
		return
	}
	if leases == nil {
		leases = []dhcpd.Lease{}
	}
	g.writeJSON(w, http.StatusOK, leases)
}

func (g *GoHTTPd) handleListSubnetLeases(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	subnet, err := g.ds.GetSubnet(r.Context(), id)
	if err != nil {
		g.fail(w, err)
		return
	}
	leases, err := g.ctrl.SubnetLeases(*subnet)
	if err != nil {
		g.fail(w, err)
		return
	}
	if leases == nil {
		leases = []dhcpd.Lease{}
	}
	g.writeJSON(w, http.StatusOK, leases)
}

func (g *GoHTTPd) handleListOptions(w http.ResponseWriter, r *http.Request) {
	var subnetID *uuid.UUID
	if raw := r.URL.Query().Get("subnet_id"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, "invalid subnet_id")
			return
		}
		subnetID = &id
	}
	options, err := g.ds.ListOptions(r.Context(), subnetID)
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, options)
}

func (g *GoHTTPd) handleCreateOption(w http.ResponseWriter, r *http.Request) {
	var in httpd.OptionCreate
	if err := decode(r, &in); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	if in.SubnetID != nil {
		if _, err := g.ds.GetSubnet(ctx, *in.SubnetID); err != nil {
			g.fail(w, err)
			return
		}
	}
	created, err := g.ds.CreateOption(ctx, dhcpd.Option{
		SubnetID: in.SubnetID,
		Name:     in.Name,
		Value:    in.Value,
	})
	if err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, created)
}

func (g *GoHTTPd) handleDeleteOption(w http.ResponseWriter, r *http.Request) {
	id, ok := g.subnetID(w, r, "id")
	if !ok {
		return
	}
	if err := g.ds.DeleteOption(r.Context(), id); err != nil {
		g.fail(w, err)
		return
	}
	g.writeJSON(w, http.StatusNoContent, nil)
}
