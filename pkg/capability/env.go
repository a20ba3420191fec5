package capability

import (
	"os"

	"github.com/mindburn-labs/hull/pkg/manifest"
)

// Env is the environment-variable capability. A name not declared in
// the manifest's env set reads as absent, even if the OS process
// actually defines it, per spec.md §4.2 and the invariant in §8.
type Env struct {
	manifest *manifest.Manifest
}

// NewEnv returns an Env capability gated by m.
func NewEnv(m *manifest.Manifest) *Env {
	return &Env{manifest: m}
}

// Get returns the named variable's value, or (nil, false) if name is
// not in the manifest's env allowlist.
func (e *Env) Get(name string) ([]byte, bool) {
	if !e.manifest.AllowsEnv(name) {
		return nil, false
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, false
	}
	return []byte(v), true
}
