// Package server implements the optional detection daemon (design
// section4.14): a long-lived process that owns one ddcdetect.Service and
// serves detect/getvcp/setvcp/capabilities/subscribe over a Unix socket, so
// repeated CLI invocations (or a desktop shell) skip re-running the bus
// scan on every call. The request/response envelope and method-name
// dispatch are grounded directly in the brightness daemon's
// router.go/handlers.go: one JSON object per line in, one JSON object per
// line out, keyed by a caller-supplied id.
package server

import (
	"encoding/json"
	"io"
)

// Request is one client request line: {"id":1,"method":"ddc.getvcp","params":{...}}.
type Request struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one server response line. Exactly one of Result/Error is set.
type Response struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func respond(w io.Writer, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(Response{ID: id, Result: result})
}

func respondError(w io.Writer, id interface{}, msg string) {
	_ = json.NewEncoder(w).Encode(Response{ID: id, Error: msg})
}
