package interpreter

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/mindburn-labs/hull/pkg/capability"
	"github.com/mindburn-labs/hull/pkg/cryptocap"
	"github.com/mindburn-labs/hull/pkg/herrors"
)

// The guest/host ABI is deliberately small and uniform: byte buffers
// cross the boundary as a (ptr, len) pair of guest-memory offsets, and
// every host function that returns a buffer packs the result as
// (ptr<<32 | len) in a uint64, with ptr == 0 meaning "no value" (empty
// optional, not-found, or failure — every import returns a single
// value, so the guest cannot tell "absent" from "failed"). This mirrors the
// "back-pointer from interpreter to host state" Design Note: since
// Hull's interpreter work is single-threaded (spec.md §5), a single
// mutable field on Host standing in for the guest's registry slot is
// sufficient — no thread-local or index table is needed.
const failSentinel = 0xFFFFFFFF

func readGuestBytes(mod api.Module, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, herrors.New(herrors.InvalidArgument, "interpreter: guest memory out of range")
	}
	out := make([]byte, length)
	copy(out, buf)
	return out, nil
}

// writeGuestBuffer asks the guest's own allocator (exported as
// "hull_alloc", by convention of the ABI every Hull script module must
// implement) for space, then copies data into it. ptr == 0 signals the
// guest could not or did not export an allocator.
func writeGuestBuffer(ctx context.Context, mod api.Module, data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	alloc := mod.ExportedFunction("hull_alloc")
	if alloc == nil {
		return 0
	}
	results, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		return 0
	}
	ptr := uint32(results[0])
	if ptr == 0 || !mod.Memory().Write(ptr, data) {
		return 0
	}
	return ptr
}

func packResult(ptr uint32, length int) uint64 {
	if ptr == 0 {
		return 0
	}
	return uint64(ptr)<<32 | uint64(uint32(length))
}

// buildHostModule registers the "hull" import module every script
// links against: capability bindings (db/fs/env/time/http/crypto) plus
// the registration calls (route_register, middleware_register,
// manifest_set) a script's start function makes to declare its routes
// and manifest before the event loop begins serving requests.
func (h *Host) buildHostModule(ctx context.Context) (api.Module, error) {
	b := h.runtime.NewHostModuleBuilder("hull")

	b.NewFunctionBuilder().WithFunc(h.dbQuery).Export("db_query")
	b.NewFunctionBuilder().WithFunc(h.dbExec).Export("db_exec")
	b.NewFunctionBuilder().WithFunc(h.dbLastInsertID).Export("db_last_id")
	b.NewFunctionBuilder().WithFunc(h.dbBegin).Export("db_begin")
	b.NewFunctionBuilder().WithFunc(h.dbCommit).Export("db_commit")
	b.NewFunctionBuilder().WithFunc(h.dbRollback).Export("db_rollback")

	b.NewFunctionBuilder().WithFunc(h.fsRead).Export("fs_read")
	b.NewFunctionBuilder().WithFunc(h.fsWrite).Export("fs_write")
	b.NewFunctionBuilder().WithFunc(h.fsExists).Export("fs_exists")
	b.NewFunctionBuilder().WithFunc(h.fsDelete).Export("fs_delete")

	b.NewFunctionBuilder().WithFunc(h.envGet).Export("env_get")

	b.NewFunctionBuilder().WithFunc(h.timeNow).Export("time_now")
	b.NewFunctionBuilder().WithFunc(h.timeNowMS).Export("time_now_ms")
	b.NewFunctionBuilder().WithFunc(h.timeMonotonicMS).Export("time_monotonic_ms")
	b.NewFunctionBuilder().WithFunc(h.timeDate).Export("time_date")
	b.NewFunctionBuilder().WithFunc(h.timeDateTime).Export("time_datetime")

	b.NewFunctionBuilder().WithFunc(h.httpRequest).Export("http_request")

	b.NewFunctionBuilder().WithFunc(h.cryptoSHA256).Export("crypto_sha256")
	b.NewFunctionBuilder().WithFunc(h.cryptoHMACSHA256).Export("crypto_hmac_sha256")
	b.NewFunctionBuilder().WithFunc(h.cryptoRandomBytes).Export("crypto_random_bytes")

	b.NewFunctionBuilder().WithFunc(h.routeRegister).Export("route_register")
	b.NewFunctionBuilder().WithFunc(h.middlewareRegister).Export("middleware_register")
	b.NewFunctionBuilder().WithFunc(h.manifestSet).Export("manifest_set")

	return b.Instantiate(ctx)
}

// --- DB ---

func (h *Host) dbQuery(ctx context.Context, mod api.Module, sqlPtr, sqlLen, paramsPtr, paramsLen uint32) uint64 {
	if h.caps.DB == nil {
		return 0
	}
	query, err := readGuestBytes(mod, sqlPtr, sqlLen)
	if err != nil {
		return 0
	}
	params, err := decodeParams(mod, paramsPtr, paramsLen)
	if err != nil {
		return 0
	}

	var rows []map[string]interface{}
	qerr := h.caps.DB.Query(ctx, string(query), params, func(cols []capability.Column) bool {
		row := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			row[c.Name] = c.Value
		}
		rows = append(rows, row)
		return true
	})
	if qerr != nil {
		return 0
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return 0
	}
	ptr := writeGuestBuffer(ctx, mod, encoded)
	return packResult(ptr, len(encoded))
}

func (h *Host) dbExec(ctx context.Context, mod api.Module, sqlPtr, sqlLen, paramsPtr, paramsLen uint32) int64 {
	if h.caps.DB == nil {
		return -1
	}
	query, err := readGuestBytes(mod, sqlPtr, sqlLen)
	if err != nil {
		return -1
	}
	params, err := decodeParams(mod, paramsPtr, paramsLen)
	if err != nil {
		return -1
	}
	n, err := h.caps.DB.Exec(ctx, string(query), params)
	if err != nil {
		return -1
	}
	return n
}

func (h *Host) dbLastInsertID(ctx context.Context, mod api.Module) int64 {
	if h.caps.DB == nil {
		return -1
	}
	id, err := h.caps.DB.LastInsertID(ctx)
	if err != nil {
		return -1
	}
	return id
}

func (h *Host) dbBegin(ctx context.Context, mod api.Module) uint32 {
	return boolResult(h.caps.DB != nil && h.caps.DB.Begin(ctx) == nil)
}

func (h *Host) dbCommit(ctx context.Context, mod api.Module) uint32 {
	return boolResult(h.caps.DB != nil && h.caps.DB.Commit() == nil)
}

func (h *Host) dbRollback(ctx context.Context, mod api.Module) uint32 {
	return boolResult(h.caps.DB != nil && h.caps.DB.Rollback() == nil)
}

func boolResult(ok bool) uint32 {
	if ok {
		return 0
	}
	return failSentinel
}

func decodeParams(mod api.Module, ptr, length uint32) ([]interface{}, error) {
	if length == 0 {
		return nil, nil
	}
	raw, err := readGuestBytes(mod, ptr, length)
	if err != nil {
		return nil, err
	}
	var params []interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "interpreter: malformed db params", err)
	}
	return params, nil
}

// --- FS ---

func (h *Host) fsRead(ctx context.Context, mod api.Module, pathPtr, pathLen uint32) uint64 {
	if h.caps.FS == nil {
		return 0
	}
	path, err := readGuestBytes(mod, pathPtr, pathLen)
	if err != nil {
		return 0
	}
	data, err := h.caps.FS.Read(string(path))
	if err != nil {
		return 0
	}
	ptr := writeGuestBuffer(ctx, mod, data)
	return packResult(ptr, len(data))
}

func (h *Host) fsWrite(ctx context.Context, mod api.Module, pathPtr, pathLen, dataPtr, dataLen uint32) uint32 {
	if h.caps.FS == nil {
		return failSentinel
	}
	path, err := readGuestBytes(mod, pathPtr, pathLen)
	if err != nil {
		return failSentinel
	}
	data, err := readGuestBytes(mod, dataPtr, dataLen)
	if err != nil {
		return failSentinel
	}
	return boolResult(h.caps.FS.Write(string(path), data) == nil)
}

func (h *Host) fsExists(ctx context.Context, mod api.Module, pathPtr, pathLen uint32) uint32 {
	if h.caps.FS == nil {
		return failSentinel
	}
	path, err := readGuestBytes(mod, pathPtr, pathLen)
	if err != nil {
		return failSentinel
	}
	ok, err := h.caps.FS.Exists(string(path))
	if err != nil {
		return failSentinel
	}
	if ok {
		return 1
	}
	return 0
}

func (h *Host) fsDelete(ctx context.Context, mod api.Module, pathPtr, pathLen uint32) uint32 {
	if h.caps.FS == nil {
		return failSentinel
	}
	path, err := readGuestBytes(mod, pathPtr, pathLen)
	if err != nil {
		return failSentinel
	}
	return boolResult(h.caps.FS.Delete(string(path)) == nil)
}

// --- Env ---

func (h *Host) envGet(ctx context.Context, mod api.Module, namePtr, nameLen uint32) uint64 {
	if h.caps.Env == nil {
		return 0
	}
	name, err := readGuestBytes(mod, namePtr, nameLen)
	if err != nil {
		return 0
	}
	val, ok := h.caps.Env.Get(string(name))
	if !ok {
		return 0
	}
	ptr := writeGuestBuffer(ctx, mod, val)
	return packResult(ptr, len(val))
}

// --- Time ---

func (h *Host) timeNow(ctx context.Context, mod api.Module) uint64 {
	if h.caps.Time == nil {
		return 0
	}
	return uint64(h.caps.Time.Now())
}

func (h *Host) timeNowMS(ctx context.Context, mod api.Module) uint64 {
	if h.caps.Time == nil {
		return 0
	}
	return uint64(h.caps.Time.NowMS())
}

func (h *Host) timeMonotonicMS(ctx context.Context, mod api.Module) uint64 {
	if h.caps.Time == nil {
		return 0
	}
	return uint64(h.caps.Time.MonotonicMS())
}

func (h *Host) timeDate(ctx context.Context, mod api.Module) uint64 {
	if h.caps.Time == nil {
		return 0
	}
	s := h.caps.Time.Date()
	ptr := writeGuestBuffer(ctx, mod, []byte(s))
	return packResult(ptr, len(s))
}

func (h *Host) timeDateTime(ctx context.Context, mod api.Module) uint64 {
	if h.caps.Time == nil {
		return 0
	}
	s := h.caps.Time.DateTime()
	ptr := writeGuestBuffer(ctx, mod, []byte(s))
	return packResult(ptr, len(s))
}

// --- HTTP ---

// httpRequestParams is the JSON shape a script encodes before calling
// http_request: one buffer in, one buffer out, rather than five
// separate string params, keeping the ABI uniform with the other
// buffer-in/buffer-out calls.
type httpRequestParams struct {
	Method  string            `json:"method"`
	URL     string             `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func (h *Host) httpRequest(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	if h.caps.HTTP == nil {
		return 0
	}
	raw, err := readGuestBytes(mod, reqPtr, reqLen)
	if err != nil {
		return 0
	}
	var params httpRequestParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return 0
	}
	resp, err := h.caps.HTTP.Request(params.Method, params.URL, params.Headers, []byte(params.Body))
	if err != nil {
		return 0
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return 0
	}
	ptr := writeGuestBuffer(ctx, mod, encoded)
	return packResult(ptr, len(encoded))
}

// --- Crypto ---
//
// Only SHA-256, HMAC-SHA256 and random bytes are exposed as host
// imports. The rest of pkg/cryptocap (SHA-512, HMAC-SHA512/256,
// PBKDF2, Ed25519, secretbox/box, JWT, constant-time compare) has no
// import here and is not reachable from guest code.

func (h *Host) cryptoSHA256(ctx context.Context, mod api.Module, dataPtr, dataLen uint32) uint64 {
	data, err := readGuestBytes(mod, dataPtr, dataLen)
	if err != nil {
		return 0
	}
	sum := cryptocap.SHA256(data)
	ptr := writeGuestBuffer(ctx, mod, sum[:])
	return packResult(ptr, len(sum))
}

func (h *Host) cryptoHMACSHA256(ctx context.Context, mod api.Module, keyPtr, keyLen, dataPtr, dataLen uint32) uint64 {
	key, err := readGuestBytes(mod, keyPtr, keyLen)
	if err != nil {
		return 0
	}
	data, err := readGuestBytes(mod, dataPtr, dataLen)
	if err != nil {
		return 0
	}
	mac := cryptocap.HMACSHA256(key, data)
	ptr := writeGuestBuffer(ctx, mod, mac)
	return packResult(ptr, len(mac))
}

func (h *Host) cryptoRandomBytes(ctx context.Context, mod api.Module, n uint32) uint64 {
	b, err := cryptocap.RandomBytes(int(n))
	if err != nil {
		return 0
	}
	ptr := writeGuestBuffer(ctx, mod, b)
	return packResult(ptr, len(b))
}

// --- Registration (route/middleware/manifest) ---
//
// These calls are only valid while a script's start function is
// running during Load; h.current is set for exactly that span (see
// host.go's Load), matching the single-threaded, "host index" Design
// Note rather than a general-purpose registry.

func (h *Host) routeRegister(ctx context.Context, mod api.Module, methodPtr, methodLen, patternPtr, patternLen, handlerID uint32) uint32 {
	if h.current == nil {
		return failSentinel
	}
	method, err := readGuestBytes(mod, methodPtr, methodLen)
	if err != nil {
		return failSentinel
	}
	pattern, err := readGuestBytes(mod, patternPtr, patternLen)
	if err != nil {
		return failSentinel
	}
	h.current.Routes = append(h.current.Routes, Route{
		Method: string(method), Pattern: string(pattern), HandlerID: handlerID,
	})
	return 0
}

func (h *Host) middlewareRegister(ctx context.Context, mod api.Module, methodPtr, methodLen, patternPtr, patternLen, handlerID uint32) uint32 {
	if h.current == nil {
		return failSentinel
	}
	method, err := readGuestBytes(mod, methodPtr, methodLen)
	if err != nil {
		return failSentinel
	}
	pattern, err := readGuestBytes(mod, patternPtr, patternLen)
	if err != nil {
		return failSentinel
	}
	h.current.Middleware = append(h.current.Middleware, Route{
		Method: string(method), Pattern: string(pattern), HandlerID: handlerID,
	})
	return 0
}

func (h *Host) manifestSet(ctx context.Context, mod api.Module, docPtr, docLen uint32) uint32 {
	if h.current == nil {
		return failSentinel
	}
	doc, err := readGuestBytes(mod, docPtr, docLen)
	if err != nil {
		return failSentinel
	}
	h.current.ManifestRaw = doc
	return 0
}
