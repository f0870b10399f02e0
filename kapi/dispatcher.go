package kapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/internal/logging"
)

// Service groups a named set of RPC methods under one /kapi/{name} route,
// mirroring verify-hub's one-server-per-concern layout
// (add_http_server("/kapi/verify-hub", ...)).
type Service struct {
	Name    string
	Methods map[string]Handler
}

// NewService builds an empty Service ready for Register calls.
func NewService(name string) *Service {
	return &Service{Name: name, Methods: map[string]Handler{}}
}

// Register binds method to h. Re-registering a method overwrites it.
func (s *Service) Register(method string, h Handler) {
	s.Methods[method] = h
}

// Dispatcher routes POST /kapi/{service} to the matching Service and, within
// it, the request envelope's "method" to the registered Handler.
type Dispatcher struct {
	services map[string]*Service
	log      zerolog.Logger
	router   *mux.Router
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{services: map[string]*Service{}, log: logging.NewAccessLogger()}
	r := mux.NewRouter()
	r.HandleFunc("/kapi/{service}", d.serveHTTP).Methods(http.MethodPost)
	d.router = r
	return d
}

// Mount registers svc under its own Name.
func (d *Dispatcher) Mount(svc *Service) {
	d.services[svc.Name] = svc
}

func (d *Dispatcher) Router() http.Handler {
	return d.router
}

func (d *Dispatcher) serveHTTP(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]
	svc, ok := d.services[serviceName]
	if !ok {
		writeError(w, derr.New(derr.NotFound, "kapi.Dispatcher", "no such service: "+serviceName), "")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("kapi.Dispatcher", "malformed request envelope"), "")
		return
	}

	handler, ok := svc.Methods[req.Method]
	if !ok {
		writeError(w, derr.New(derr.NotFound, "kapi.Dispatcher", "no such method: "+serviceName+"."+req.Method), req.TraceId)
		return
	}

	rctx := RequestContext{Ctx: r.Context(), Seq: req.Seq, TraceId: req.TraceId, Token: req.Token}
	result, err := handler(rctx, req.Params)
	if err != nil {
		d.log.Info().Str("service", serviceName).Str("method", req.Method).Err(err).Msg("kapi request failed")
		writeError(w, err, req.TraceId)
		return
	}

	writeJSON(w, http.StatusOK, Response{Result: result, Seq: req.Seq, TraceId: req.TraceId})
}

func writeError(w http.ResponseWriter, err error, traceId string) {
	kind := derr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), ErrorBody{Code: int(kind), Message: err.Error(), TraceId: traceId})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
