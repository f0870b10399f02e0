// Package kapi implements the JSON-RPC surface spec.md §6 names alongside
// the /ndn HTTP surface: POST /kapi/{service} carrying an envelope of
// {method, params, seq, trace_id, token}, dispatched to a registered
// per-service handler. Grounded on original_source/src/kernel/verify_hub's
// own `/kapi/verify-hub` RPC server (method/params dispatch over a single
// POST endpoint) and on the teacher's gorilla/mux routing idiom already
// used by ndnserver.
package kapi

import (
	"context"
	"encoding/json"

	"github.com/cyfs-go/ndncore/internal/derr"
)

// Request is the inbound envelope (spec.md §6): "method" names the RPC
// within a service, "params" is method-specific, "seq" and "trace_id" are
// opaque client-supplied correlation ids echoed back untouched, and
// "token" carries the bearer session token when the service requires
// authentication instead of the HTTP Authorization header.
type Request struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Seq     int64           `json:"seq,omitempty"`
	TraceId string          `json:"trace_id,omitempty"`
	Token   string          `json:"token,omitempty"`
}

// Response is the success envelope. Error responses use ErrorBody instead,
// per spec.md §6 "{code, message, trace_id}".
type Response struct {
	Result  any    `json:"result"`
	Seq     int64  `json:"seq,omitempty"`
	TraceId string `json:"trace_id,omitempty"`
}

// ErrorBody is the JSON body of a non-2xx response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceId string `json:"trace_id,omitempty"`
}

// Handler answers one RPC method within a service. params is the raw
// "params" field of the request; the handler decodes it into whatever
// shape its method expects.
type Handler func(ctx RequestContext, params json.RawMessage) (any, error)

// RequestContext carries the parts of a Request a Handler needs beyond
// params, plus the caller identity Enforce (or a looser auth path)
// resolved, when applicable.
type RequestContext struct {
	Ctx     context.Context
	Seq     int64
	TraceId string
	Token   string
	UserId  string
	AppId   string
}

func badRequest(op, msg string) error {
	return derr.New(derr.InvalidId, op, msg)
}
