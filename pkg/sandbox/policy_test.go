package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mindburn-labs/hull/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifestFor(t *testing.T, raw string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Extract(nil, []byte(raw))
	require.NoError(t, err)
	return m
}

func TestCompileGrantsBasePromises(t *testing.T) {
	m := manifest.Empty()
	p, err := Compile(m)
	require.NoError(t, err)
	assert.Contains(t, p.Promises(), "stdio")
	assert.NotContains(t, p.Promises(), "dns")
}

func TestCompileAddsDNSWhenHostsPresent(t *testing.T) {
	m := manifestFor(t, `{"hosts":["api.example.com"]}`)
	p, err := Compile(m)
	require.NoError(t, err)
	assert.Contains(t, p.Promises(), "dns")
}

func TestAllowsReadPrefixMatch(t *testing.T) {
	m := manifestFor(t, `{"fs":{"read":["data/"]}}`)
	p, err := Compile(m)
	require.NoError(t, err)

	ok, err := p.AllowsRead("data/users.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.AllowsRead("/etc/passwd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowsHostExactMatchCaseInsensitive(t *testing.T) {
	m := manifestFor(t, `{"hosts":["api.example.com"]}`)
	p, err := Compile(m)
	require.NoError(t, err)

	ok, err := p.AllowsHost("API.Example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.AllowsHost("api.other.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidatePathRejectsAbsoluteAndTraversal(t *testing.T) {
	_, err := ValidatePath("/app/data", "/etc/passwd")
	assert.Error(t, err)

	_, err = ValidatePath("/app/data", "../../etc/passwd")
	assert.Error(t, err)

	resolved, err := ValidatePath("/app/data", "users/1.json")
	require.NoError(t, err)
	assert.Equal(t, "/app/data/users/1.json", resolved)
}

func TestValidatePathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "data", "link.txt")))

	_, err := ValidatePath(root, "data/link.txt")
	assert.Error(t, err)
}

func TestValidatePathAllowsSymlinkStayingWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real", "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real", "a.txt"), filepath.Join(root, "data", "link.txt")))

	resolved, err := ValidatePath(root, "data/link.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "link.txt"), resolved)
}

func TestValidatePathAllowsNonExistentFileUnderRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))

	resolved, err := ValidatePath(root, "data/new.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "new.txt"), resolved)
}

func TestEnforcedMatchesBuildPlatform(t *testing.T) {
	// On every platform the test suite runs on other than OpenBSD,
	// Enforced() must report false: the applier is a documented no-op.
	assert.Equal(t, runtime.GOOS == "openbsd", Enforced())
}
