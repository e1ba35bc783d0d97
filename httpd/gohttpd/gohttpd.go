// Package gohttpd serves the management API over plain net/http.
package gohttpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"

	"github.com/lovi-cloud/lyra/datastore"
	"github.com/lovi-cloud/lyra/dhcpd"
	"github.com/lovi-cloud/lyra/httpd"
	"github.com/lovi-cloud/lyra/service"
)

// GoHTTPd is
type GoHTTPd struct {
	ds     datastore.Datastore
	ctrl   *service.Controller
	logger *zap.Logger
}

// New is
func New(ds datastore.Datastore, ctrl *service.Controller, logger *zap.Logger) (httpd.HTTPd, error) {
	return &GoHTTPd{
		ds:     ds,
		ctrl:   ctrl,
		logger: logger,
	}, nil
}

// Serve is
func (g *GoHTTPd) Serve(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: g.mux()}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *GoHTTPd) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /status", g.loggingHandler(http.HandlerFunc(g.handleStatus)))
	mux.Handle("GET /interfaces", g.loggingHandler(http.HandlerFunc(g.handleInterfaces)))
	mux.Handle("POST /apply", g.loggingHandler(http.HandlerFunc(g.handleApply)))
	mux.Handle("POST /start", g.loggingHandler(http.HandlerFunc(g.handleStart)))
	mux.Handle("POST /stop", g.loggingHandler(http.HandlerFunc(g.handleStop)))
	mux.Handle("POST /restart", g.loggingHandler(http.HandlerFunc(g.handleRestart)))
	mux.Handle("GET /config/preview", g.loggingHandler(http.HandlerFunc(g.handlePreview)))
	mux.Handle("GET /config/validate", g.loggingHandler(http.HandlerFunc(g.handleValidate)))

	mux.Handle("GET /subnets", g.loggingHandler(http.HandlerFunc(g.handleListSubnets)))
	mux.Handle("POST /subnets", g.loggingHandler(http.HandlerFunc(g.handleCreateSubnet)))
	mux.Handle("GET /subnets/{id}", g.loggingHandler(http.HandlerFunc(g.handleGetSubnet)))
	mux.Handle("PATCH /subnets/{id}", g.loggingHandler(http.HandlerFunc(g.handleUpdateSubnet)))
	mux.Handle("DELETE /subnets/{id}", g.loggingHandler(http.HandlerFunc(g.handleDeleteSubnet)))

	mux.Handle("GET /subnets/{id}/hosts", g.loggingHandler(http.HandlerFunc(g.handleListHosts)))
	mux.Handle("POST /subnets/{id}/hosts", g.loggingHandler(http.HandlerFunc(g.handleCreateHost)))
	mux.Handle("PATCH /subnets/{id}/hosts/{hostID}", g.loggingHandler(http.HandlerFunc(g.handleUpdateHost)))
	mux.Handle("DELETE /subnets/{id}/hosts/{hostID}", g.loggingHandler(http.HandlerFunc(g.handleDeleteHost)))

	mux.Handle("GET /leases", g.loggingHandler(http.HandlerFunc(g.handleListLeases)))
	mux.Handle("GET /subnets/{id}/leases", g.loggingHandler(http.HandlerFunc(g.handleListSubnetLeases)))

	mux.Handle("GET /options", g.loggingHandler(http.HandlerFunc(g.handleListOptions)))
	mux.Handle("POST /options", g.loggingHandler(http.HandlerFunc(g.handleCreateOption)))
	mux.Handle("DELETE /options/{id}", g.loggingHandler(http.HandlerFunc(g.handleDeleteOption)))

	return mux
}

func (g *GoHTTPd) loggingHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.logger.Info("http request log", zap.String("method", r.Method), zap.String("url", r.URL.String()), zap.String("remote", r.RemoteAddr))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		g.logger.Info("http response log", zap.Int("code", rec.Code))
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		rec.Body.WriteTo(w)
	})
}

func (g *GoHTTPd) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *GoHTTPd) writeError(w http.ResponseWriter, code int, msg string) {
	g.writeJSON(w, code, errorResponse{Error: msg})
}

// fail maps domain errors onto HTTP status codes, keeping the daemon or
// validator diagnostic intact in the body.
func (g *GoHTTPd) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		g.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, datastore.ErrDuplicateReservation):
		g.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dhcpd.ErrInvalidAddress),
		errors.Is(err, dhcpd.ErrInvalidRange),
		errors.Is(err, dhcpd.ErrOutOfSubnet),
		errors.Is(err, service.ErrNoEnabledSubnets),
		errors.Is(err, service.ErrConfigInvalid):
		g.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProcessTimeout),
		errors.Is(err, service.ErrProcessFailure),
		errors.Is(err, service.ErrServiceUnknown):
		g.writeError(w, http.StatusBadGateway, err.Error())
	default:
		g.logger.Error("request failed", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type messageResponse struct {
	Message string `json:"message"`
}
