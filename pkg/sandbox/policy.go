// Package sandbox translates a manifest into kernel-enforced
// filesystem visibility and syscall restrictions, per spec.md §4.6.
//
// Grounded on pkg/runtime/sandbox.PolicyEnforcer's allowlist-prefix
// CheckFS/CheckNetwork pair and pkg/boundary.PerimeterEnforcer's
// host-pattern matching; generalized here to Hull's concrete Manifest
// type and promoted from plain string matching to compiled CEL
// predicates (google/cel-go), as kernel/celdp.Evaluator does for rule
// expressions, so one compiled program — not a fresh loop per call —
// backs each allowlist check.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/manifest"
)

// Policy is the applied, compiled form of a Manifest: the set of
// promises the sandbox grants plus compiled CEL predicates for the
// fs/host allowlist checks the capability layer re-runs on every call
// (spec.md: kernel enforcement is defense-in-depth behind the
// capability layer's own validators, not a replacement for them).
type Policy struct {
	manifest *manifest.Manifest
	promises []string

	fsReadProgram  cel.Program
	fsWriteProgram cel.Program
	hostProgram    cel.Program
}

// promises always granted regardless of manifest content, per spec.md
// §4.6: "always includes basic I/O, IP socket accept, read/write/create
// paths, and file locking".
var basePromises = []string{"stdio", "inet", "rpath", "wpath", "cpath", "flock"}

// Compile builds a Policy from m, compiling the allowlist predicates
// once so repeated per-request checks are cheap CEL program
// evaluations rather than repeated prefix scans.
func Compile(m *manifest.Manifest) (*Policy, error) {
	p := &Policy{manifest: m}
	p.promises = append(p.promises, basePromises...)

	if m.ImpliesDNS() {
		p.promises = append(p.promises, "dns")
	}

	env, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("prefixes", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "sandbox: cel env init failed", err)
	}

	prog, err := compilePrefixPredicate(env)
	if err != nil {
		return nil, err
	}
	p.fsReadProgram = prog
	p.fsWriteProgram = prog

	hostEnv, err := cel.NewEnv(
		cel.Variable("host", cel.StringType),
		cel.Variable("allowed", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "sandbox: cel env init failed", err)
	}
	hostProg, err := compileHostPredicate(hostEnv)
	if err != nil {
		return nil, err
	}
	p.hostProgram = hostProg

	return p, nil
}

func compilePrefixPredicate(env *cel.Env) (cel.Program, error) {
	ast, issues := env.Compile(`prefixes.exists(p, path.startsWith(p))`)
	if issues != nil && issues.Err() != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "sandbox: cel compile failed", issues.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "sandbox: cel program build failed", err)
	}
	return prog, nil
}

func compileHostPredicate(env *cel.Env) (cel.Program, error) {
	ast, issues := env.Compile(`allowed.exists(h, h == host)`)
	if issues != nil && issues.Err() != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "sandbox: cel compile failed", issues.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "sandbox: cel program build failed", err)
	}
	return prog, nil
}

// Promises returns the syscall promise set this policy grants.
func (p *Policy) Promises() []string {
	out := make([]string, len(p.promises))
	copy(out, p.promises)
	return out
}

// AllowsRead reports whether path is within an allow-listed read
// prefix. pkg/capability passes the script-supplied relative path
// unchanged (after ValidatePath has confirmed its real location stays
// under the app root); the prefix match here is lexical, so a symlink
// under an allowed prefix is not checked against the prefixes by its
// real location. This function only evaluates the compiled allowlist
// predicate.
func (p *Policy) AllowsRead(path string) (bool, error) {
	return p.evalPrefix(p.fsReadProgram, path, p.manifest.FSRead)
}

// AllowsWrite reports whether path is within an allow-listed write prefix.
func (p *Policy) AllowsWrite(path string) (bool, error) {
	return p.evalPrefix(p.fsWriteProgram, path, p.manifest.FSWrite)
}

func (p *Policy) evalPrefix(prog cel.Program, path string, prefixes []string) (bool, error) {
	if !p.manifest.Present || len(prefixes) == 0 {
		return false, nil
	}
	out, _, err := prog.Eval(map[string]interface{}{
		"path":     path,
		"prefixes": prefixes,
	})
	if err != nil {
		return false, herrors.Wrap(herrors.RuntimeError, "sandbox: predicate eval failed", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, herrors.New(herrors.RuntimeError, "sandbox: predicate returned non-bool")
	}
	return allowed, nil
}

// AllowsHost reports whether host is in the manifest's hosts allowlist.
func (p *Policy) AllowsHost(host string) (bool, error) {
	if !p.manifest.Present || len(p.manifest.Hosts) == 0 {
		return false, nil
	}
	out, _, err := p.hostProgram.Eval(map[string]interface{}{
		"host":    strings.ToLower(host),
		"allowed": lowerAll(p.manifest.Hosts),
	})
	if err != nil {
		return false, herrors.Wrap(herrors.RuntimeError, "sandbox: predicate eval failed", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, herrors.New(herrors.RuntimeError, "sandbox: predicate returned non-bool")
	}
	return allowed, nil
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

// ValidatePath rejects absolute paths and ".." segments, then resolves
// path relative to base and requires the result remain under base —
// the script-side validator spec.md §4.2 describes as running ahead of
// (and independent from) kernel enforcement. Since apply_other.go
// leaves the kernel layer a no-op on every platform but OpenBSD, this
// validator is the only thing standing between a manifest-granted
// prefix and a symlink planted under it that points elsewhere, so the
// resolved path's real location — not just its lexical one — is
// checked against base, per spec.md §4.2/§8's realpath requirement.
func ValidatePath(base, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", herrors.New(herrors.NotPermitted, "sandbox: absolute paths not permitted")
	}
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return "", herrors.New(herrors.NotPermitted, "sandbox: path traversal not permitted")
		}
	}
	resolved := filepath.Join(base, path)
	rel, err := filepath.Rel(base, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", herrors.New(herrors.NotPermitted, fmt.Sprintf("sandbox: path %q escapes root", path))
	}

	realBase, err := realpath(base)
	if err != nil {
		return "", herrors.Wrap(herrors.IOError, "sandbox: root resolution failed", err)
	}
	realResolved, err := realpath(resolved)
	if err != nil {
		return "", herrors.Wrap(herrors.IOError, "sandbox: path resolution failed", err)
	}
	realRel, err := filepath.Rel(realBase, realResolved)
	if err != nil || strings.HasPrefix(realRel, "..") {
		return "", herrors.New(herrors.NotPermitted, fmt.Sprintf("sandbox: path %q escapes root via symlink", path))
	}

	return resolved, nil
}

// realpath evaluates symlinks along path, walking up to the nearest
// existing ancestor when path (or a trailing segment, e.g. a file a
// Write call hasn't created yet) does not exist, then rejoins the
// non-existent tail onto the resolved ancestor.
func realpath(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return "", err
	}
	realParent, err := realpath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(realParent, filepath.Base(path)), nil
}
