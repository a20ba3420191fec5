package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mindburn-labs/hull/pkg/cryptocap"
	"github.com/mindburn-labs/hull/pkg/herrors"
)

// CheckResult is one stage of the verification pipeline, mirroring
// pkg/verifier's report-of-checks shape.
type CheckResult struct {
	Name   string
	Pass   bool
	Detail string
}

// Report is the full pipeline's outcome.
type Report struct {
	Verified bool
	Checks   []CheckResult
}

// Assets supplies the on-disk or embedded file contents Verify checks
// listed files against. Exactly one of BaseDir or Embedded should be set.
type Assets struct {
	BaseDir  string
	Embedded map[string][]byte
}

// Config parameterizes the verification pipeline.
type Config struct {
	DeveloperKeyPath string // file containing 64 hex characters
	DocumentDir      string // directory containing package.sig (or legacy name)
	ExpectedPlatformKey string // compile-time-embedded hex key; all-zeros means "no platform pinning"
	Assets           Assets
}

var zeroPlatformKey = strings.Repeat("0", 64)

// Verify runs the full pipeline described in spec.md §4.4. It fails
// closed: the first failing stage stops the pipeline and Report.Verified
// is false, with that stage's CheckResult recording the reason.
func Verify(cfg Config) (*Report, error) {
	report := &Report{Verified: true}
	fail := func(name, detail string) (*Report, error) {
		report.Checks = append(report.Checks, CheckResult{Name: name, Pass: false, Detail: detail})
		report.Verified = false
		return report, herrors.New(herrors.IntegrityFailure, name+": "+detail)
	}
	pass := func(name, detail string) {
		report.Checks = append(report.Checks, CheckResult{Name: name, Pass: true, Detail: detail})
	}

	// 1. Developer public key file.
	devKeyRaw, err := os.ReadFile(cfg.DeveloperKeyPath)
	if err != nil {
		return fail("developer_key", fmt.Sprintf("cannot read: %v", err))
	}
	devKey := strings.TrimSpace(string(devKeyRaw))
	if len(devKey) != 64 {
		return fail("developer_key", "must be 64 hex characters")
	}
	if _, err := hex.DecodeString(devKey); err != nil {
		return fail("developer_key", "not valid hex")
	}
	pass("developer_key", "loaded")

	// 2. Signature document, current name falling back to legacy.
	var raw []byte
	var docPath string
	for _, name := range EntryFileNames {
		candidate := filepath.Join(cfg.DocumentDir, name)
		if b, err := os.ReadFile(candidate); err == nil {
			raw = b
			docPath = candidate
			break
		}
	}
	if raw == nil {
		return fail("document_read", "no package.sig or legacy signature file found")
	}
	doc, err := Parse(raw)
	if err != nil {
		return fail("document_parse", err.Error())
	}
	pass("document_parse", docPath)

	// 3. Developer key match.
	if !strings.EqualFold(doc.PublicKey, devKey) {
		return fail("developer_key_match", "document public_key does not match supplied developer key")
	}
	pass("developer_key_match", "keys match")

	// 4. Platform layer, if present.
	if doc.Platform != nil {
		if cfg.ExpectedPlatformKey != "" && !strings.EqualFold(cfg.ExpectedPlatformKey, zeroPlatformKey) {
			if !strings.EqualFold(doc.Platform.PublicKey, cfg.ExpectedPlatformKey) {
				return fail("platform_key_match", "platform public_key does not match compiled-in expected key")
			}
		}
		ok, err := cryptocap.Ed25519Verify(doc.Platform.PublicKey, doc.Platform.Signature, doc.Platform.PlatformPayload())
		if err != nil {
			return fail("platform_signature", err.Error())
		}
		if !ok {
			return fail("platform_signature", "platform signature verification failed")
		}
		pass("platform_signature", fmt.Sprintf("%d platform entries", len(doc.Platform.Platforms)))
	} else {
		pass("platform_signature", "no platform layer present")
	}

	// 5. Application layer.
	ok, err := cryptocap.Ed25519Verify(doc.PublicKey, doc.Signature, doc.ApplicationPayload())
	if err != nil {
		return fail("application_signature", err.Error())
	}
	if !ok {
		return fail("application_signature", "application signature verification failed")
	}
	pass("application_signature", "verified")

	// 6. Per-file SHA-256, and no unlisted extra files.
	listed := make(map[string]bool, len(doc.Files))
	for _, f := range doc.Files {
		listed[f.Path] = true
		content, err := readAsset(cfg.Assets, f.Path)
		if err != nil {
			return fail("file_hash", fmt.Sprintf("%s: %v", f.Path, err))
		}
		sum := sha256.Sum256(content)
		actual := hex.EncodeToString(sum[:])
		if !strings.EqualFold(actual, f.Hash) {
			return fail("file_hash", fmt.Sprintf("%s: hash mismatch", f.Path))
		}
	}
	if cfg.Assets.Embedded != nil {
		for name := range cfg.Assets.Embedded {
			if !listed[name] {
				return fail("file_hash", fmt.Sprintf("embedded asset %q not listed in signature", name))
			}
		}
	}
	pass("file_hash", fmt.Sprintf("%d files verified", len(doc.Files)))

	return report, nil
}

func readAsset(a Assets, path string) ([]byte, error) {
	if a.Embedded != nil {
		b, ok := a.Embedded[path]
		if !ok {
			return nil, herrors.New(herrors.IntegrityFailure, "embedded asset missing")
		}
		return b, nil
	}
	return os.ReadFile(filepath.Join(a.BaseDir, path))
}
