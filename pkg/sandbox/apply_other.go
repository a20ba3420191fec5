//go:build !openbsd

package sandbox

import "log/slog"

// Apply is a no-op on platforms without unveil/pledge: defense
// reduces to the capability layer's own validators, per spec.md §4.6
// ("Where no kernel primitive exists, the applier is a no-op and logs
// that defense reduces to the capability layer's validators").
func Apply(p *Policy, dbPath string) error {
	return nil
}

// ApplyLogged is Apply plus the explicit log line spec.md calls for.
func ApplyLogged(log *slog.Logger, p *Policy, dbPath string) error {
	if log != nil {
		log.Warn("sandbox: no kernel enforcement primitive on this platform; relying on capability-layer validators",
			"promises", p.Promises())
	}
	return Apply(p, dbPath)
}

// Enforced reports whether this platform has a kernel sandbox primitive.
func Enforced() bool { return false }
