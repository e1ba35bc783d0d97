package gohttpd

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lovi-cloud/lyra/config"
	"github.com/lovi-cloud/lyra/datastore/sqlite"
	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/httpd"
	"github.com/lovi-cloud/lyra/service"
	"github.com/lovi-cloud/lyra/system"
)

// fakeSystem satisfies the controller's capabilities; the CRUD handlers under
// test never reach the daemon, so every call is a successful no-op.
type fakeSystem struct{}

func (f *fakeSystem) Run(context.Context, time.Duration, string, ...string) (system.Result, error) {
	return system.Result{ExitCode: 0}, nil
}

func (f *fakeSystem) ReadFile(string) ([]byte, error)             { return nil, fs.ErrNotExist }
func (f *fakeSystem) WriteFile(string, []byte, fs.FileMode) error { return nil }
func (f *fakeSystem) Rename(string, string) error                 { return nil }
func (f *fakeSystem) Remove(string) error                         { return nil }
func (f *fakeSystem) Exists(string) bool                          { return false }
func (f *fakeSystem) MkdirAll(string, fs.FileMode) error          { return nil }
func (f *fakeSystem) PhysicalInterfaces() ([]string, error)       { return []string{"eth0"}, nil }

func testMux(t *testing.T) *http.ServeMux {
	t.Helper()
	dsn := fmt.Sprintf("file:gohttpd_%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	ds, err := sqlite.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { ds.Close() })

	ctrl := service.New(config.Default(), &fakeSystem{}, zap.NewNop())
	g, err := New(ds, ctrl, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g.(*GoHTTPd).mux()
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body)
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error
}

func createTestSubnet(t *testing.T, mux *http.ServeMux) httpd.SubnetRead {
	t.Helper()
	rec := do(t, mux, http.MethodPost, "/subnets", `{
		"name": "office",
		"network": "192.168.1.0/24",
		"range_start": "192.168.1.100",
		"range_end": "192.168.1.200",
		"gateway": "192.168.1.1",
		"interface": "eth0"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create subnet: status %d, body %s", rec.Code, rec.Body)
	}
	var subnet httpd.SubnetRead
	decodeBody(t, rec, &subnet)
	return subnet
}

func TestCreateSubnetAndReservation(t *testing.T) {
	mux := testMux(t)
	subnet := createTestSubnet(t, mux)
	if !subnet.Enabled {
		t.Error("subnet not enabled by default")
	}
	if subnet.LeaseTime != 86400 || subnet.MaxLeaseTime != 172800 {
		t.Errorf("lease times = %d/%d, want defaults", subnet.LeaseTime, subnet.MaxLeaseTime)
	}

	rec := do(t, mux, http.MethodPost, "/subnets/"+subnet.ID.String()+"/hosts",
		`{"hostname": "printer", "mac_address": "AA:BB:CC:DD:EE:01", "ip_address": "192.168.1.50"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create host: status %d, body %s", rec.Code, rec.Body)
	}
	var host dhcpd.Host
	decodeBody(t, rec, &host)
	if host.MACAddress.String() != "aa:bb:cc:dd:ee:01" {
		t.Errorf("mac = %s, want canonical form", host.MACAddress)
	}

	rec = do(t, mux, http.MethodGet, "/subnets/"+subnet.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get subnet: status %d", rec.Code)
	}
	var read httpd.SubnetRead
	decodeBody(t, rec, &read)
	if read.HostCount != 1 {
		t.Errorf("host count = %d, want 1", read.HostCount)
	}
}

func TestCreateHostOutsideSubnet(t *testing.T) {
	mux := testMux(t)
	subnet := createTestSubnet(t, mux)

	rec := do(t, mux, http.MethodPost, "/subnets/"+subnet.ID.String()+"/hosts",
		`{"hostname": "stray", "mac_address": "aa:bb:cc:dd:ee:02", "ip_address": "192.168.2.5"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
	}
	if msg := errorBody(t, rec); !strings.Contains(msg, "not in subnet") {
		t.Errorf("error = %q", msg)
	}

	rec = do(t, mux, http.MethodGet, "/subnets/"+subnet.ID.String()+"/hosts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list hosts: status %d", rec.Code)
	}
	var hosts []dhcpd.Host
	decodeBody(t, rec, &hosts)
	if len(hosts) != 0 {
		t.Errorf("rejected host was persisted: %+v", hosts)
	}
}

func TestCreateHostDuplicateReservation(t *testing.T) {
	mux := testMux(t)
	subnet := createTestSubnet(t, mux)

	rec := do(t, mux, http.MethodPost, "/subnets/"+subnet.ID.String()+"/hosts",
		`{"hostname": "first", "mac_address": "aa:bb:cc:dd:ee:01", "ip_address": "192.168.1.50"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create host: status %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, mux, http.MethodPost, "/subnets/"+subnet.ID.String()+"/hosts",
		`{"hostname": "second", "mac_address": "AA:BB:CC:DD:EE:01", "ip_address": "192.168.1.51"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate MAC: status = %d, want 409; body %s", rec.Code, rec.Body)
	}
}

func TestCreateSubnetValidation(t *testing.T) {
	mux := testMux(t)
	tests := []struct {
		name string
		body string
	}{
		{"reversed range", `{"name": "x", "network": "192.168.1.0/24", "range_start": "192.168.1.200", "range_end": "192.168.1.100", "gateway": "192.168.1.1"}`},
		{"range outside network", `{"name": "x", "network": "192.168.1.0/24", "range_start": "192.168.2.100", "range_end": "192.168.2.200", "gateway": "192.168.1.1"}`},
		{"gateway outside network", `{"name": "x", "network": "192.168.1.0/24", "range_start": "192.168.1.100", "range_end": "192.168.1.200", "gateway": "192.168.2.1"}`},
		{"bad network", `{"name": "x", "network": "nope", "range_start": "192.168.1.100", "range_end": "192.168.1.200", "gateway": "192.168.1.1"}`},
		{"ipv6 network", `{"name": "x", "network": "2001:db8::/64", "range_start": "2001:db8::1", "range_end": "2001:db8::2", "gateway": "2001:db8::1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/subnets", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
			}
		})
	}

	rec := do(t, mux, http.MethodGet, "/subnets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list subnets: status %d", rec.Code)
	}
	var subnets []httpd.SubnetRead
	decodeBody(t, rec, &subnets)
	if len(subnets) != 0 {
		t.Errorf("rejected subnets were persisted: %+v", subnets)
	}
}

func TestUpdateSubnetValidation(t *testing.T) {
	mux := testMux(t)
	subnet := createTestSubnet(t, mux)

	rec := do(t, mux, http.MethodPatch, "/subnets/"+subnet.ID.String(),
		`{"gateway": "192.168.2.1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body)
	}

	rec = do(t, mux, http.MethodPatch, "/subnets/"+subnet.ID.String(),
		`{"name": "renamed", "enabled": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid update: status %d, body %s", rec.Code, rec.Body)
	}
	var read httpd.SubnetRead
	decodeBody(t, rec, &read)
	if read.Name != "renamed" || read.Enabled {
		t.Errorf("updated = %+v", read)
	}
}

func TestSubnetNotFound(t *testing.T) {
	mux := testMux(t)

	rec := do(t, mux, http.MethodGet, "/subnets/6ba7b810-9dad-11d1-80b4-00c04fd430c8", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/subnets/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
