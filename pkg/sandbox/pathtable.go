package sandbox

import "github.com/mindburn-labs/hull/pkg/herrors"

// PathEntry is one (path, perms) pair in a PathTable. perms follows the
// unveil vocabulary ("r", "rwc", ...) rather than a bespoke permission
// enum, so a PathTable built for the OpenBSD applier above can unveil
// its entries directly.
type PathEntry struct {
	Path  string
	Perms string
}

// PathTable is the unveil path table spec.md §3 describes for tool
// mode: an ordered (path, perms) sequence a build-tool driver appends
// to, terminated by a Seal call. It is independent of Policy — it
// carries no manifest, no CEL predicates, and no promise set, because
// the build-tool driver that populates it is not serving capability
// calls against a Manifest at all.
type PathTable struct {
	entries []PathEntry
	sealed  bool
}

// NewPathTable returns an empty, unsealed PathTable.
func NewPathTable() *PathTable {
	return &PathTable{}
}

// Add appends a (path, perms) entry. It fails once the table is
// sealed: per spec.md §3, "after sealing, no further entries accepted."
func (t *PathTable) Add(path, perms string) error {
	if t.sealed {
		return herrors.New(herrors.NotPermitted, "sandbox: path table sealed")
	}
	t.entries = append(t.entries, PathEntry{Path: path, Perms: perms})
	return nil
}

// Seal terminates the table. Idempotent: sealing an already-sealed
// table is a no-op, matching the one-shot "seal after unveils" pattern
// Apply uses for the request-time sandbox.
func (t *PathTable) Seal() {
	t.sealed = true
}

// Sealed reports whether Seal has been called.
func (t *PathTable) Sealed() bool {
	return t.sealed
}

// Entries returns a copy of the accumulated (path, perms) pairs, in
// append order, regardless of seal state.
func (t *PathTable) Entries() []PathEntry {
	out := make([]PathEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
