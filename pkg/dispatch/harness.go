package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/interpreter"
)

// HarnessResult is what a synthesized request returns to the caller,
// per spec.md §4.9: "{status, body, json}".
type HarnessResult struct {
	Status int
	Body   []byte
	JSON   json.RawMessage
}

// RequestOpts parameterizes a synthesized request beyond method+path.
type RequestOpts struct {
	Query   string
	Headers map[string]string
	Body    []byte
}

// TestCase is one registered test.
type TestCase struct {
	Description string
	Fn          func(h *Harness) error
}

// TestResult records the outcome of running one TestCase.
type TestResult struct {
	Description string
	Passed      bool
	Err         error
}

// Harness is the in-process test harness of spec.md §4.9: it matches
// the same registered routes as the serving Dispatcher but bypasses
// the middleware chain entirely — "the test dispatcher bypasses
// middleware (the middleware chain is a feature of the serving
// dispatcher only)". Body is owned by the HarnessResult and freed (by
// the garbage collector, in Go's case) once the caller is done
// inspecting it; there is no explicit destroy step.
type Harness struct {
	host   Invoker
	script *interpreter.Script
	cases  []TestCase
}

// NewHarness returns a Harness bound to one loaded script.
func NewHarness(host Invoker, script *interpreter.Script) *Harness {
	return &Harness{host: host, script: script}
}

// Get, Post, Put, Delete, and Patch synthesize a request of the named
// method against path and dispatch it directly to the matching
// route's handler, with no middleware involved.
func (h *Harness) Get(path string, opts RequestOpts) (*HarnessResult, error) {
	return h.Do(http.MethodGet, path, opts)
}

func (h *Harness) Post(path string, opts RequestOpts) (*HarnessResult, error) {
	return h.Do(http.MethodPost, path, opts)
}

func (h *Harness) Put(path string, opts RequestOpts) (*HarnessResult, error) {
	return h.Do(http.MethodPut, path, opts)
}

func (h *Harness) Delete(path string, opts RequestOpts) (*HarnessResult, error) {
	return h.Do(http.MethodDelete, path, opts)
}

func (h *Harness) Patch(path string, opts RequestOpts) (*HarnessResult, error) {
	return h.Do(http.MethodPatch, path, opts)
}

// Do synthesizes a request with method/path/opts and dispatches it
// directly to the first matching route's handler. No middleware runs
// and no socket is ever opened.
func (h *Harness) Do(method, path string, opts RequestOpts) (*HarnessResult, error) {
	parsed, err := url.Parse(path)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "harness: invalid path", err)
	}
	query := opts.Query
	if query == "" {
		query = parsed.RawQuery
	}

	req := &Request{
		Method:    method,
		Path:      parsed.Path,
		Query:     query,
		Params:    map[string]string{},
		Headers:   opts.Headers,
		Body:      opts.Body,
		RequestID: uuid.NewString(),
		Context:   map[string]string{},
	}

	for _, route := range h.script.Routes {
		if !matchRoute(route, req.Method, req.Path) {
			continue
		}
		req.Params = mergeParams(req.Params, route.Pattern, req.Path)

		hreq := &interpreter.HandlerRequest{
			Method:    req.Method,
			Path:      req.Path,
			Query:     req.Query,
			Params:    req.Params,
			Headers:   req.Headers,
			Body:      req.Body,
			RequestID: req.RequestID,
		}
		out, err := h.host.Invoke(context.Background(), h.script, route.HandlerID, hreq)
		if err != nil {
			return nil, err
		}
		result := &HarnessResult{Status: out.Status, Body: out.Body}
		if json.Valid(out.Body) {
			result.JSON = json.RawMessage(out.Body)
		}
		return result, nil
	}

	return &HarnessResult{Status: http.StatusNotFound, Body: []byte("not found")}, nil
}

// Test registers a named test case, to be run later by Run. Cases are
// collected into a list and run sequentially, per spec.md §4.9.
func (h *Harness) Test(description string, fn func(h *Harness) error) {
	h.cases = append(h.cases, TestCase{Description: description, Fn: fn})
}

// Run executes every registered test case in registration order and
// returns one TestResult per case plus the pass/fail counts.
func (h *Harness) Run() (results []TestResult, passed, failed int) {
	for _, tc := range h.cases {
		err := tc.Fn(h)
		res := TestResult{Description: tc.Description, Passed: err == nil, Err: err}
		results = append(results, res)
		if err == nil {
			passed++
		} else {
			failed++
		}
	}
	return results, passed, failed
}

// Eq asserts got == want and returns an error describing the mismatch
// otherwise — the bundled assertion spec.md §4.9 calls for.
func Eq(got, want interface{}) error {
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		return herrors.New(herrors.InvalidArgument, "assertion failed: "+string(gotJSON)+" != "+string(wantJSON))
	}
	return nil
}

// Ok asserts err == nil.
func Ok(err error) error {
	if err != nil {
		return herrors.Wrap(herrors.InvalidArgument, "assertion failed: expected ok", err)
	}
	return nil
}

// Err asserts err != nil.
func Err(err error) error {
	if err == nil {
		return herrors.New(herrors.InvalidArgument, "assertion failed: expected an error")
	}
	return nil
}
