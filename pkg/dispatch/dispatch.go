// Package dispatch implements the request bridge, route/middleware
// chain, and in-process test harness of spec.md §4.8/§4.9: one
// handler call per matched route, under a shared per-request context,
// with middleware running in registration order ahead of it.
//
// Grounded on pkg/boundary/perimeter.go's enforcement-mode dispatch
// shape (ordered policy checks, first-match-wins, structured deny
// reasons) and core/cmd/helm's explicit RunOptions/engine-run pattern
// for a deterministic, stage-by-stage pipeline. Request IDs use
// github.com/google/uuid, pervasive in the teacher corpus.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mindburn-labs/hull/pkg/capability"
	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/interpreter"
)

// maxBodyBytes bounds the request body the factory will read, per
// spec.md §3: "the body reader lazily produces a bounded byte slice
// (≤1 MiB by design; the factory enforces the cap)".
const maxBodyBytes = 1 << 20

// Request is Hull's internal view of an inbound HTTP request, per
// spec.md §3. It is constructed once per request and handed
// unchanged down the middleware chain and into the route handler.
type Request struct {
	Method  string
	Path    string
	Query   string
	Params  map[string]string
	Headers map[string]string
	Body    []byte

	// RequestID is a per-request identifier threaded through logging
	// and, where a script handler asks for it, exposed as part of the
	// per-request context (spec.md §3's "per-request context (key-
	// value mapping owned by the request lifecycle)").
	RequestID string
	Context   map[string]string
}

// Response is the mutable response handle a handler or middleware
// function builds, per spec.md §3: status defaults to 200, headers
// are an ordered list, body bytes are host-owned for the lifetime of
// the response.
type Response struct {
	Status  int
	Headers []interpreter.HeaderPair
	Body    []byte
}

// NewResponse returns a Response with spec.md's documented default
// status.
func NewResponse() *Response {
	return &Response{Status: 200}
}

// NewRequestFromHTTP reads r into Hull's internal Request shape,
// enforcing the body size cap before any excess is allocated (spec.md
// §8's boundary behavior: "Request body exceeding its cap is rejected
// by the body factory without allocating the excess").
func NewRequestFromHTTP(r *http.Request, params map[string]string) (*Request, error) {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	var body []byte
	if r.Body != nil {
		limited := io.LimitReader(r.Body, maxBodyBytes+1)
		b, err := io.ReadAll(limited)
		if err != nil {
			return nil, herrors.Wrap(herrors.IOError, "dispatch: body read failed", err)
		}
		if len(b) > maxBodyBytes {
			return nil, herrors.New(herrors.InvalidArgument, "dispatch: request body exceeds cap")
		}
		body = b
	}

	return &Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Params:    params,
		Headers:   headers,
		Body:      body,
		RequestID: uuid.NewString(),
		Context:   make(map[string]string),
	}, nil
}

// Invoker is the subset of *interpreter.Host that Dispatcher and
// Harness depend on. Tests substitute a fake to exercise routing,
// middleware ordering, and short-circuiting without a real wazero
// module.
type Invoker interface {
	Invoke(ctx context.Context, script *interpreter.Script, handlerID uint32, req *interpreter.HandlerRequest) (*interpreter.HandlerResponse, error)
}

// Dispatcher holds the insertion-ordered route and middleware
// sequences of one loaded script and runs the chain described in
// spec.md §4.8 against the shared DB handle (for guard_stale_txn) and
// interpreter host (to actually invoke guest code).
type Dispatcher struct {
	host   Invoker
	script *interpreter.Script
	db     *capability.DB
	log    *slog.Logger
}

// New returns a Dispatcher bound to one loaded script.
func New(host Invoker, script *interpreter.Script, db *capability.DB, log *slog.Logger) *Dispatcher {
	return &Dispatcher{host: host, script: script, db: db, log: log}
}

// Dispatch runs the full serving-path pipeline for req: guard any
// stale transaction, walk the middleware chain in registration order,
// and — if nothing short-circuited — invoke the matched route's
// handler. An unhandled interpreter error produces a 500 and halts,
// per spec.md §4.8.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	if d.db != nil {
		if err := d.db.GuardStaleTxn(); err != nil && d.log != nil {
			d.log.Warn("guard_stale_txn failed", "error", err, "request_id", req.RequestID)
		}
	}

	for _, mw := range d.script.Middleware {
		if !matchRoute(mw, req.Method, req.Path) {
			continue
		}
		resp, halted, err := d.invoke(ctx, mw.HandlerID, req)
		if err != nil {
			return d.errorResponse(req, err)
		}
		if halted {
			return resp
		}
	}

	for _, route := range d.script.Routes {
		if !matchRoute(route, req.Method, req.Path) {
			continue
		}
		req.Params = mergeParams(req.Params, route.Pattern, req.Path)
		resp, _, err := d.invoke(ctx, route.HandlerID, req)
		if err != nil {
			return d.errorResponse(req, err)
		}
		return resp
	}

	return &Response{Status: http.StatusNotFound, Body: []byte("not found")}
}

// invoke calls handlerID via the interpreter host and translates its
// HandlerResponse into a dispatch.Response. halted reports whether the
// call's Continue was false (or the call failed); Dispatch ignores it
// for route handlers, whose Continue is meaningless.
func (d *Dispatcher) invoke(ctx context.Context, handlerID uint32, req *Request) (resp *Response, halted bool, err error) {
	hreq := &interpreter.HandlerRequest{
		Method:    req.Method,
		Path:      req.Path,
		Query:     req.Query,
		Params:    req.Params,
		Headers:   req.Headers,
		Body:      req.Body,
		RequestID: req.RequestID,
	}
	out, ierr := d.host.Invoke(ctx, d.script, handlerID, hreq)
	if ierr != nil {
		return nil, true, ierr
	}
	return &Response{Status: out.Status, Headers: out.Headers, Body: out.Body}, !out.Continue, nil
}

func (d *Dispatcher) errorResponse(req *Request, err error) *Response {
	if d.log != nil {
		d.log.Error("handler error", "error", err, "request_id", req.RequestID)
	}
	return &Response{Status: http.StatusInternalServerError, Body: []byte("internal server error")}
}

// matchRoute reports whether method/path match r's method ('*'
// matches any) and pattern (exact, trailing "/*" prefix match, or
// ":name" segment binding), per spec.md §3/§8.
func matchRoute(r interpreter.Route, method, path string) bool {
	if r.Method != "*" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return patternMatches(r.Pattern, path)
}

func patternMatches(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}

	pSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	rSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(pSegs) != len(rSegs) {
		return false
	}
	for i, seg := range pSegs {
		if strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != rSegs[i] {
			return false
		}
	}
	return true
}

// mergeParams extracts ":name" bindings from pattern against path and
// merges them into a copy of existing; an entry already in existing
// wins on collision. Nothing in this package parses the query string
// into Params; the server and the harness pass an empty map.
func mergeParams(existing map[string]string, pattern, path string) map[string]string {
	out := make(map[string]string, len(existing))
	for k, v := range existing {
		out[k] = v
	}
	if strings.HasSuffix(pattern, "/*") {
		return out
	}
	pSegs := strings.Split(strings.Trim(pattern, "/"), "/")
	rSegs := strings.Split(strings.Trim(path, "/"), "/")
	if len(pSegs) != len(rSegs) {
		return out
	}
	for i, seg := range pSegs {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if _, exists := out[name]; !exists {
				out[name] = rSegs[i]
			}
		}
	}
	return out
}
