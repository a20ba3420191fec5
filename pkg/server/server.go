// Package server wraps net/http.Server as the HTTP event loop of
// spec.md §2/§5: a single-threaded, single-process listener that
// hands every request straight to the dispatcher, with a read timeout
// enforced at this layer (spec.md §5: "The HTTP library enforces a
// read timeout on incoming connections").
//
// Grounded on apps/helm-node/main.go's net/http.Server + signal.Notify
// graceful-shutdown pattern and kernelruntime/server.go's thin
// Server/New/Start shape, generalized from a stub to an actual
// listener tying the request bridge in as its handler.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mindburn-labs/hull/pkg/dispatch"
	"github.com/mindburn-labs/hull/pkg/herrors"
)

// readTimeout bounds how long the HTTP library waits to finish
// reading a request before it gives up on the connection, per
// spec.md §5's "Cancellation and timeouts".
const readTimeout = 30 * time.Second

// Server is Hull's HTTP event loop: one net/http.Server whose handler
// routes every request through a dispatch.Dispatcher.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// New builds a Server bound to addr, serving through d.
func New(addr string, d *dispatch.Dispatcher, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/", &bridgeHandler{dispatcher: d, log: log})

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: readTimeout,
		},
		log: log,
	}
}

// ListenAndServe blocks serving requests until the server is shut
// down or a startup error occurs. It returns nil on a clean
// Shutdown-triggered close (http.ErrServerClosed is swallowed),
// matching spec.md §6's "0 on clean shutdown" exit code contract.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		return herrors.Wrap(herrors.IOError, "server: listen failed", err)
	}
	return nil
}

// Shutdown gracefully stops the event loop, letting any in-flight
// request finish within ctx's deadline. Per spec.md §5's lifetime
// discipline, callers close the interpreter host and DB handle only
// after Shutdown returns.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// bridgeHandler is the http.Handler side of spec.md §4.8's request
// bridge: it marshals an *http.Request into Hull's internal Request
// shape, dispatches it, and writes the resulting Response back.
type bridgeHandler struct {
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	// mu serializes dispatch: net/http serves each connection on its
	// own goroutine, and only one request at a time enters the
	// interpreter.
	mu sync.Mutex
}

func (b *bridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := dispatch.NewRequestFromHTTP(r, map[string]string{})
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
		return
	}

	b.mu.Lock()
	resp := b.dispatcher.Dispatch(r.Context(), req)
	b.mu.Unlock()

	for _, h := range resp.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil && b.log != nil {
			b.log.Warn("response write failed", "error", err, "request_id", req.RequestID)
		}
	}
}
