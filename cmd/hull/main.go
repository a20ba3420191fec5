// Command hull is Hull's serving binary: it parses the CLI surface of
// spec.md §6, opens the SQLite database, builds the tracked allocator
// and interpreter host, loads the scripted application, optionally
// verifies its dual-layer signature, extracts and applies its
// manifest-driven sandbox, and serves HTTP/1.1 until shut down.
//
// Grounded on apps/helm-node/main.go's Run(args, stdout, stderr) int
// pattern (testable entrypoint, explicit exit-code dispatch) and
// core/cmd/helm/main.go's subcommand-free flag parsing.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mindburn-labs/hull/pkg/alloc"
	"github.com/mindburn-labs/hull/pkg/capability"
	"github.com/mindburn-labs/hull/pkg/config"
	"github.com/mindburn-labs/hull/pkg/dispatch"
	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/interpreter"
	"github.com/mindburn-labs/hull/pkg/logging"
	"github.com/mindburn-labs/hull/pkg/manifest"
	"github.com/mindburn-labs/hull/pkg/sandbox"
	"github.com/mindburn-labs/hull/pkg/server"
	"github.com/mindburn-labs/hull/pkg/signature"
)

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: parse args, run the startup
// pipeline of spec.md §2, and block serving until shutdown. It
// returns 0 on a clean shutdown and 1 on any startup-stage failure,
// per spec.md §6's exit code contract.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.ShowHelp {
		config.Usage(stdout)
		return 0
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := logging.New(stderr, level)

	db, err := capability.Open(cfg.DBPath)
	if err != nil {
		log.Error("startup: db open failed", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	appRoot := filepath.Dir(cfg.EntryPoint)

	wasmBytes, err := os.ReadFile(cfg.EntryPoint)
	if err != nil {
		log.Error("startup: script load failed", "error", err, "entry_point", cfg.EntryPoint)
		return 1
	}

	// Charge the compiled script's own size against the configured
	// heap ceiling before handing it to wazero. This tracker is
	// separate from wazero's guest-memory page limit, which NewHost
	// derives from the same heap limit; guest allocations are not
	// charged to it.
	tracker := alloc.NewTracker(cfg.HeapLimit)
	if err := tracker.Alloc(int64(len(wasmBytes))); err != nil {
		log.Error("startup: script exceeds heap ceiling", "error", err)
		return 1
	}

	// The manifest and sandbox policy aren't known until after the
	// script's start function runs (it registers them via the
	// manifest_set/route_register imports), so capability objects
	// that depend on the manifest are built in two passes: first a
	// placeholder built from an absent manifest, which denies every
	// fs, env and outbound-host access, so Load can complete; then the
	// real, manifest-gated capabilities before any request is served.
	emptyManifest := manifest.Empty()
	emptyPolicy, err := sandbox.Compile(emptyManifest)
	if err != nil {
		log.Error("startup: sandbox compile failed", "error", err)
		return 1
	}

	host, err := interpreter.NewHost(ctx, interpreter.Config{MaxHeapBytes: cfg.HeapLimit, MaxStackBytes: cfg.StackLimit}, interpreter.Capabilities{
		DB:   db,
		FS:   capability.NewFS(appRoot, emptyPolicy),
		Env:  capability.NewEnv(emptyManifest),
		Time: capability.NewTime(),
		HTTP: capability.NewHTTP(emptyPolicy),
	})
	if err != nil {
		log.Error("startup: interpreter init failed", "error", err)
		return 1
	}
	defer func() { _ = host.Close(ctx) }()

	script, err := host.Load(ctx, wasmBytes)
	if err != nil {
		log.Error("startup: script load failed", "error", err)
		return 1
	}
	defer func() { _ = script.Close(ctx) }()

	if err := verifySignatureIfPresent(appRoot, cfg.VerifySigKeyPath, log); err != nil {
		log.Error("startup: signature verification failed", "error", err)
		return 1
	}

	m, err := manifest.Extract(log, script.ManifestRaw)
	if err != nil {
		log.Error("startup: manifest extraction failed", "error", err)
		return 1
	}

	if cfg.PrintUnveilTable {
		return printUnveilTable(m, cfg.DBPath, stdout, log)
	}

	policy, err := sandbox.Compile(m)
	if err != nil {
		log.Error("startup: sandbox compile failed", "error", err)
		return 1
	}
	if err := sandbox.ApplyLogged(log, policy, cfg.DBPath); err != nil {
		log.Error("startup: sandbox apply failed", "error", err)
		return 1
	}

	// Rebuild the capabilities against the real manifest/policy now
	// that the sandbox has been applied, and swap them into the
	// already-running Host before the first request is ever
	// dispatched.
	host.SetCapabilities(interpreter.Capabilities{
		DB:   db,
		FS:   capability.NewFS(appRoot, policy),
		Env:  capability.NewEnv(m),
		Time: capability.NewTime(),
		HTTP: capability.NewHTTP(policy),
	})

	d := dispatch.New(host, script, db, log)
	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)
	srv := server.New(addr, d, log)

	return serveUntilSignal(srv, log)
}

// serveUntilSignal runs srv until SIGINT/SIGTERM, then shuts it down
// gracefully. Returns the process exit code: 0 for a clean shutdown,
// 1 if the listener itself failed to start.
func serveUntilSignal(srv *server.Server, log *slog.Logger) int {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server: listen failed", "error", err)
			return 1
		}
		return 0
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server: shutdown failed", "error", err)
			return 1
		}
		return 0
	}
}

// verifySignatureIfPresent runs the signature pipeline only when a
// package.sig/hull.sig document actually exists beside the entry
// point; when one exists it always runs, whether or not -verify-sig
// was given. keyPath (the -verify-sig value), when empty, defaults to
// developer.pub beside the entry point.
func verifySignatureIfPresent(appRoot, keyPath string, log *slog.Logger) error {
	found := false
	for _, name := range signature.EntryFileNames {
		if _, err := os.Stat(filepath.Join(appRoot, name)); err == nil {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if keyPath == "" {
		keyPath = filepath.Join(appRoot, "developer.pub")
	}
	report, err := signature.Verify(signature.Config{
		DeveloperKeyPath: keyPath,
		DocumentDir:      appRoot,
		Assets:           signature.Assets{BaseDir: appRoot},
	})
	if err != nil {
		for _, c := range report.Checks {
			if !c.Pass {
				return herrors.Wrap(herrors.IntegrityFailure, c.Name+": "+c.Detail, err)
			}
		}
		return err
	}
	log.Info("signature verified", "checks", len(report.Checks))
	return nil
}

// printUnveilTable builds the tool-mode unveil path table for m and
// prints it, one entry per line, then returns the clean exit code.
// This is the build-tool-driver entrypoint spec.md §3 describes: it
// inspects what a kernel unveil/pledge application would grant without
// running the request-time Manifest-driven Policy or serving any
// requests at all.
func printUnveilTable(m *manifest.Manifest, dbPath string, stdout io.Writer, log *slog.Logger) int {
	table, err := buildUnveilPathTable(m, dbPath)
	if err != nil {
		log.Error("startup: unveil table build failed", "error", err)
		return 1
	}
	for _, e := range table.Entries() {
		fmt.Fprintf(stdout, "%s\t%s\n", e.Path, e.Perms)
	}
	return 0
}

// buildUnveilPathTable constructs the tool-mode PathTable for m: one
// entry per fs_read prefix ("r"), one per fs_write prefix and the
// database path ("rwc"), sealed immediately after. It reads the
// manifest's path lists directly rather than going through Policy's
// compiled CEL predicates, keeping it independent of the request-time
// sandbox per spec.md §3.
func buildUnveilPathTable(m *manifest.Manifest, dbPath string) (*sandbox.PathTable, error) {
	t := sandbox.NewPathTable()
	for _, p := range m.FSRead {
		if err := t.Add(p, "r"); err != nil {
			return nil, err
		}
	}
	for _, p := range m.FSWrite {
		if err := t.Add(p, "rwc"); err != nil {
			return nil, err
		}
	}
	if dbPath != "" {
		if err := t.Add(dbPath, "rwc"); err != nil {
			return nil, err
		}
	}
	t.Seal()
	return t, nil
}
