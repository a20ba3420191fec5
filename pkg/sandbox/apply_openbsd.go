//go:build openbsd

package sandbox

import (
	"log/slog"
	"strings"

	"github.com/mindburn-labs/hull/pkg/herrors"
	"golang.org/x/sys/unix"
)

// Apply calls unveil for each allow-listed path and pledge for the
// policy's promise set, per spec.md §4.6. Once sealed, no further
// unveil call is accepted by the kernel; Apply always seals after its
// own unveils, matching the "load manifest once, apply once at
// startup" lifecycle.
func Apply(p *Policy, dbPath string) error {
	for _, path := range p.manifest.FSRead {
		if err := unix.Unveil(path, "r"); err != nil {
			return herrors.Wrap(herrors.IOError, "sandbox: unveil(read) failed for "+path, err)
		}
	}
	for _, path := range p.manifest.FSWrite {
		if err := unix.Unveil(path, "rwc"); err != nil {
			return herrors.Wrap(herrors.IOError, "sandbox: unveil(write) failed for "+path, err)
		}
	}
	if dbPath != "" {
		if err := unix.Unveil(dbPath, "rwc"); err != nil {
			return herrors.Wrap(herrors.IOError, "sandbox: unveil(db) failed", err)
		}
	}
	if err := unix.UnveilBlock(); err != nil {
		return herrors.Wrap(herrors.IOError, "sandbox: unveil seal failed", err)
	}

	promises := strings.Join(p.Promises(), " ")
	if err := unix.PledgePromises(promises); err != nil {
		return herrors.Wrap(herrors.IOError, "sandbox: pledge failed", err)
	}
	return nil
}

// ApplyLogged is Apply plus a confirmation log line on success.
func ApplyLogged(log *slog.Logger, p *Policy, dbPath string) error {
	if err := Apply(p, dbPath); err != nil {
		return err
	}
	if log != nil {
		log.Info("sandbox: kernel enforcement applied", "promises", p.Promises())
	}
	return nil
}

// Enforced reports whether this platform has a kernel sandbox primitive.
func Enforced() bool { return true }
