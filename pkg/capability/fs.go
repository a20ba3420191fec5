package capability

import (
	"os"

	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/mindburn-labs/hull/pkg/sandbox"
)

// FS is the filesystem capability: the only path by which scripted
// handlers touch the filesystem, per spec.md §4.2.
type FS struct {
	root   string
	policy *sandbox.Policy
}

// NewFS returns an FS capability rooted at root and gated by policy.
func NewFS(root string, policy *sandbox.Policy) *FS {
	return &FS{root: root, policy: policy}
}

// Read validates path, checks the read allowlist, and returns its
// contents.
func (f *FS) Read(path string) ([]byte, error) {
	resolved, err := sandbox.ValidatePath(f.root, path)
	if err != nil {
		return nil, err
	}
	allowed, err := f.policy.AllowsRead(path)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, herrors.New(herrors.NotPermitted, "fs: read outside manifest: "+path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, herrors.Wrap(herrors.IOError, "fs: read failed", err)
	}
	return data, nil
}

// Write validates path, checks the write allowlist, and writes data,
// creating the file if needed.
func (f *FS) Write(path string, data []byte) error {
	resolved, err := sandbox.ValidatePath(f.root, path)
	if err != nil {
		return err
	}
	allowed, err := f.policy.AllowsWrite(path)
	if err != nil {
		return err
	}
	if !allowed {
		return herrors.New(herrors.NotPermitted, "fs: write outside manifest: "+path)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return herrors.Wrap(herrors.IOError, "fs: write failed", err)
	}
	return nil
}

// Exists reports whether path exists, after the same validation as Read.
func (f *FS) Exists(path string) (bool, error) {
	resolved, err := sandbox.ValidatePath(f.root, path)
	if err != nil {
		return false, err
	}
	allowed, err := f.policy.AllowsRead(path)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, herrors.New(herrors.NotPermitted, "fs: exists outside manifest: "+path)
	}
	_, statErr := os.Stat(resolved)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, herrors.Wrap(herrors.IOError, "fs: stat failed", statErr)
}

// Delete validates path, checks the write allowlist (delete requires
// write permission), and removes the file.
func (f *FS) Delete(path string) error {
	resolved, err := sandbox.ValidatePath(f.root, path)
	if err != nil {
		return err
	}
	allowed, err := f.policy.AllowsWrite(path)
	if err != nil {
		return err
	}
	if !allowed {
		return herrors.New(herrors.NotPermitted, "fs: delete outside manifest: "+path)
	}
	if err := os.Remove(resolved); err != nil {
		return herrors.Wrap(herrors.IOError, "fs: delete failed", err)
	}
	return nil
}
