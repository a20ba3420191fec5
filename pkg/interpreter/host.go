// Package interpreter instantiates the scripted application as a
// WebAssembly module under wazero, per spec.md §4.7: a deny-by-default
// sandbox with a tracked memory ceiling, capability bindings exposed as
// host imports, and the route-registration/manifest-extraction calls a
// script module makes against those imports during its start function.
//
// Grounded on pkg/runtime/sandbox/wasi_sandbox.go's WASISandbox: same
// wazero.NewRuntimeConfig/WithMemoryLimitPages setup, the same
// deny-by-default comment-documented omissions (no WithFSConfig, no
// WithSysNanotime, no WithRandSource), and the same
// compile-once/instantiate-per-load/Close-at-shutdown lifecycle. Hull
// generalizes it from a one-shot "run a module, capture stdout" sandbox
// into a long-lived host that keeps the module instance alive across
// many request dispatches and wires real capability bindings as
// imports instead of leaving the module to talk only to stdin/stdout.
package interpreter

import (
	"context"
	"encoding/json"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/mindburn-labs/hull/pkg/capability"
	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/manifest"
)

// Config is the interpreter host's explicit configuration record, per
// spec.md §4.7: "max_heap_bytes (hard ceiling; allocation failures
// return null), max_stack_bytes ..., optional instruction-gas hook".
type Config struct {
	MaxHeapBytes  int64
	MaxStackBytes int64 // informational; wazero has no separate guest stack ceiling to bind
}

const wasmPageSize = 64 * 1024

func (c Config) memoryLimitPages() uint32 {
	if c.MaxHeapBytes <= 0 {
		return 0
	}
	pages := uint32(c.MaxHeapBytes / wasmPageSize)
	if pages == 0 {
		pages = 1
	}
	return pages
}

// Capabilities bundles the capability-layer objects a loaded script's
// host imports dispatch to. Every field may be nil; the corresponding
// import then always fails closed with its ABI failure sentinel (see
// abi.go; no error category reaches the guest), matching the
// manifest's "absent declaration, absent capability" posture.
type Capabilities struct {
	DB   *capability.DB
	FS   *capability.FS
	Env  *capability.Env
	Time *capability.Time
	HTTP *capability.HTTP
}

// Host owns the wazero runtime and the compiled "hull" host module
// that every loaded script links against. One Host is created at
// process startup and closed at shutdown; many Scripts are never
// actually loaded concurrently under Hull's single-threaded model, but
// a Host could in principle outlive several sequential loads.
type Host struct {
	runtime wazero.Runtime
	hostMod api.Module
	caps    Capabilities
	cfg     Config

	// current is the Script under construction while its start
	// function runs during Load; route_register/middleware_register/
	// manifest_set (abi.go) append to it. nil outside of Load, which
	// is safe under Hull's single-threaded request model (spec.md §5,
	// §9's "back-pointer from interpreter to host state" Design Note).
	current *Script
}

// NewHost builds a deny-by-default wazero runtime tied to cfg's memory
// ceiling and compiles the "hull" host import module that exposes caps
// to guest code.
func NewHost(ctx context.Context, cfg Config, caps Capabilities) (*Host, error) {
	rtCfg := wazero.NewRuntimeConfig()
	if pages := cfg.memoryLimitPages(); pages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(pages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	// Deny-by-default, matching WASISandbox: the WASI functions are
	// instantiated, but Load's module config mounts no filesystem,
	// supplies no real clock or random source, and wires only stderr
	// to the host; WASI has no network import. All real
	// effects go through the "hull" capability imports below, each
	// itself gated by the manifest/sandbox policy.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "interpreter: wasi instantiate failed", err)
	}

	h := &Host{runtime: r, caps: caps, cfg: cfg}

	compiled, err := h.buildHostModule(ctx)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	h.hostMod = compiled

	return h, nil
}

// Close tears down the wazero runtime, reclaiming every module's
// memory. Per spec.md §5's lifetime discipline, this runs last, after
// every request has drained.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// SetCapabilities replaces the capability set every subsequent ABI
// call dispatches to. A script's manifest is only known after Load
// runs its start function, so the caller's usual sequence is: NewHost
// with placeholder (manifest-less) capabilities, Load, extract the
// real manifest, compile the real sandbox Policy, then SetCapabilities
// with capability objects gated by that Policy — before the first
// request is ever dispatched, per spec.md §2's lifecycle.
func (h *Host) SetCapabilities(caps Capabilities) {
	h.caps = caps
}

// errNoCapability names the NotPermitted condition of an import bound
// to a nil capability. No import returns it: each returns its own ABI
// failure sentinel instead (0, -1 or failSentinel; see abi.go), so no
// Go error crosses into guest code.
var errNoCapability = herrors.New(herrors.NotPermitted, "interpreter: capability not configured")

// ManifestExtractor is an alias of manifest.Manifest, the snapshot type
// pkg/manifest.Extract builds from a script's declared manifest global.
type ManifestExtractor = manifest.Manifest

// HeaderPair is a single header name/value pair, preserving
// declaration order the way spec.md §3's Response handle requires
// ("ordered list of header pairs") — a Go map would not.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Route is a (method, pattern, handler) triple. Middleware entries
// share this exact shape, per spec.md §4.8.
type Route struct {
	Method    string
	Pattern   string
	HandlerID uint32
}

// Script is one loaded application module: the routes and middleware
// its start function registered, its raw manifest document (if any),
// and the live guest module instance later dispatches invoke against.
type Script struct {
	mod         api.Module
	Routes      []Route
	Middleware  []Route
	ManifestRaw json.RawMessage
}

// Close releases the script's guest module instance, reclaiming its
// linear memory. Per spec.md §5, this runs before the Host itself
// closes.
func (s *Script) Close(ctx context.Context) error {
	if s.mod == nil {
		return nil
	}
	return s.mod.Close(ctx)
}

// guestDispatchFn is the export every Hull script module must
// provide: given a handler id and a request buffer, it returns a
// packed (ptr,len) response buffer using the same convention as the
// host's own buffer-returning imports (see abi.go's packResult).
const guestDispatchFn = "hull_dispatch"

// Load instantiates wasmBytes as a fresh guest module and runs its
// start function. While the start function runs, h.current is set so
// the route_register/middleware_register/manifest_set imports
// (abi.go) land on the returned Script; spec.md §2's lifecycle step
// "load script, which registers routes + manifest" happens entirely
// inside this call.
func (h *Host) Load(ctx context.Context, wasmBytes []byte) (*Script, error) {
	script := &Script{}
	h.current = script
	defer func() { h.current = nil }()

	cfg := wazero.NewModuleConfig().
		WithStderr(os.Stderr).
		WithStartFunctions("_start")

	mod, err := h.runtime.InstantiateWithConfig(ctx, wasmBytes, cfg)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "interpreter: script load failed", err)
	}
	script.mod = mod
	return script, nil
}

// HandlerRequest is the JSON shape a request is marshaled into before
// crossing into guest code, per spec.md §4.8's "marshals
// request+response into interpreter values" step.
type HandlerRequest struct {
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Query     string            `json:"query"`
	Params    map[string]string `json:"params"`
	Headers   map[string]string `json:"headers"`
	Body      []byte            `json:"body"`
	RequestID string            `json:"request_id"`
}

// HandlerResponse is the JSON shape a guest route handler or
// middleware function returns. Continue is meaningful only for
// middleware (false short-circuits the chain, per spec.md §4.8); a
// route handler's Continue field is ignored.
type HandlerResponse struct {
	Status   int          `json:"status"`
	Headers  []HeaderPair `json:"headers"`
	Body     []byte       `json:"body"`
	Continue bool         `json:"continue"`
}

// Invoke calls handlerID — a route's or middleware's HandlerID — with
// req and decodes its HandlerResponse. The returned Body is a
// Go-owned copy read out of guest memory before Invoke returns, per
// spec.md §4.8's body-lifetime note: guest locals may be gone by the
// time the HTTP library writes the response, so host-owned storage
// backs it from the moment it crosses the ABI boundary.
func (h *Host) Invoke(ctx context.Context, script *Script, handlerID uint32, req *HandlerRequest) (*HandlerResponse, error) {
	fn := script.mod.ExportedFunction(guestDispatchFn)
	if fn == nil {
		return nil, herrors.New(herrors.RuntimeError, "interpreter: script does not export "+guestDispatchFn)
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "interpreter: request marshal failed", err)
	}
	reqPtr := writeGuestBuffer(ctx, script.mod, reqBytes)
	if reqPtr == 0 && len(reqBytes) > 0 {
		return nil, herrors.New(herrors.RuntimeError, "interpreter: guest allocator unavailable")
	}

	results, err := fn.Call(ctx, uint64(handlerID), uint64(reqPtr), uint64(len(reqBytes)))
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "interpreter: handler raised an uncaught error", err)
	}
	if len(results) == 0 {
		return nil, herrors.New(herrors.RuntimeError, "interpreter: handler returned no result")
	}

	packed := results[0]
	respPtr := uint32(packed >> 32)
	respLen := uint32(packed)
	if respPtr == 0 {
		return nil, herrors.New(herrors.RuntimeError, "interpreter: handler produced no response")
	}

	respBytes, err := readGuestBytes(script.mod, respPtr, respLen)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "interpreter: response read failed", err)
	}

	var resp HandlerResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "interpreter: malformed handler response", err)
	}
	return &resp, nil
}
