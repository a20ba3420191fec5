package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mindburn-labs/hull/pkg/cryptocap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSignedDocument signs a minimal legacy-form document over one
// listed file and returns the document bytes plus the developer key hex.
func buildSignedDocument(t *testing.T, fileHash string) ([]byte, string) {
	t.Helper()
	kp, err := cryptocap.Ed25519GenerateKey()
	require.NoError(t, err)
	pubHex := hex.EncodeToString(kp.PublicKey)

	payload := fmt.Sprintf(`{"files":[{"path":"app.js","hash":"%s"}],"manifest":null}`, fileHash)
	sig := cryptocap.Ed25519Sign(kp.PrivateKey, []byte(payload))

	doc := fmt.Sprintf(`{"files":[{"path":"app.js","hash":"%s"}],"manifest":null,"public_key":"%s","signature":"%s"}`,
		fileHash, pubHex, sig)
	return []byte(doc), pubHex
}

func TestVerifyHappyPath(t *testing.T) {
	dir := t.TempDir()
	appContent := []byte(`console.log("hi")`)
	sum := sha256.Sum256(appContent)
	hash := hex.EncodeToString(sum[:])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), appContent, 0o644))

	docBytes, pubHex := buildSignedDocument(t, hash)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.sig"), docBytes, 0o644))

	keyPath := filepath.Join(dir, "developer.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte(pubHex), 0o644))

	report, err := Verify(Config{
		DeveloperKeyPath: keyPath,
		DocumentDir:      dir,
		Assets:           Assets{BaseDir: dir},
	})
	require.NoError(t, err)
	assert.True(t, report.Verified)
}

func TestVerifyRejectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	appContent := []byte(`console.log("hi")`)
	sum := sha256.Sum256(appContent)
	hash := hex.EncodeToString(sum[:])

	docBytes, pubHex := buildSignedDocument(t, hash)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.sig"), docBytes, 0o644))

	// Write a different file than what was hashed — simulates a bit flip.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte(`console.log("tampered")`), 0o644))

	keyPath := filepath.Join(dir, "developer.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte(pubHex), 0o644))

	report, err := Verify(Config{
		DeveloperKeyPath: keyPath,
		DocumentDir:      dir,
		Assets:           Assets{BaseDir: dir},
	})
	assert.Error(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, "file_hash", report.Checks[len(report.Checks)-1].Name)
}

func TestVerifyRejectsDeveloperKeyMismatch(t *testing.T) {
	dir := t.TempDir()
	docBytes, _ := buildSignedDocument(t, "deadbeef")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.sig"), docBytes, 0o644))

	otherKp, err := cryptocap.Ed25519GenerateKey()
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "developer.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte(hex.EncodeToString(otherKp.PublicKey)), 0o644))

	report, err := Verify(Config{
		DeveloperKeyPath: keyPath,
		DocumentDir:      dir,
		Assets:           Assets{BaseDir: dir},
	})
	assert.Error(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, "developer_key_match", report.Checks[len(report.Checks)-1].Name)
}

func TestVerifyMissingDocument(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "developer.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte(fmt.Sprintf("%064d", 0)), 0o644))

	report, err := Verify(Config{
		DeveloperKeyPath: keyPath,
		DocumentDir:      dir,
		Assets:           Assets{BaseDir: dir},
	})
	assert.Error(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, "document_read", report.Checks[len(report.Checks)-1].Name)
}
