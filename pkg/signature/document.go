package signature

import (
	"sort"
	"strings"

	"github.com/mindburn-labs/hull/pkg/herrors"
)

// EntryFileNames are the package.sig document's two accepted file
// names, newest first; the legacy name is tried when the current one
// is absent.
var EntryFileNames = []string{"package.sig", "hull.sig"}

// FileEntry is one listed file's declared path and expected SHA-256 hex digest.
type FileEntry struct {
	Path string
	Hash string
}

// PlatformArch is one platform-layer architecture entry.
type PlatformArch struct {
	Hash   string
	Canary string
}

// Platform is the nested platform-layer signature section.
type Platform struct {
	Platforms map[string]PlatformArch
	PublicKey string
	Signature string

	raw          []byte // the whole platform object's raw span
	platformsRaw []byte // the "platforms" value's raw span, used as the signed payload
}

// Document is a parsed signature document, either the current
// dual-layer form (binary_hash present) or the legacy single-layer
// form (binary_hash absent).
type Document struct {
	Legacy bool

	BinaryHash     string
	TrampolineHash string
	PublicKey      string
	Signature      string
	Files          []FileEntry
	Manifest       []byte // raw JSON span, or nil if absent
	ManifestNull   bool   // true if manifest was present but JSON null
	Platform       *Platform

	fields map[string]field // top-level raw spans, for canonical reconstruction
}

// Parse scans raw as a signature document. It does not verify
// anything — see Verify for the full pipeline.
func Parse(raw []byte) (*Document, error) {
	pos := skipWS(raw, 0)
	fields, _, err := scanObjectFields(raw, pos)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "signature: document parse failed", err)
	}

	doc := &Document{fields: fields}
	_, hasBinaryHash := fields["binary_hash"]
	doc.Legacy = !hasBinaryHash

	if f, ok := fields["binary_hash"]; ok {
		if f.kind != kindString {
			return nil, herrors.New(herrors.InvalidArgument, "signature: binary_hash must be a string")
		}
		doc.BinaryHash = f.str
	}
	if f, ok := fields["trampoline_hash"]; ok {
		if f.kind != kindString {
			return nil, herrors.New(herrors.InvalidArgument, "signature: trampoline_hash must be a string")
		}
		doc.TrampolineHash = f.str
	}
	pubF, ok := fields["public_key"]
	if !ok || pubF.kind != kindString {
		return nil, herrors.New(herrors.InvalidArgument, "signature: missing or malformed public_key")
	}
	doc.PublicKey = pubF.str

	sigF, ok := fields["signature"]
	if !ok || sigF.kind != kindString {
		return nil, herrors.New(herrors.InvalidArgument, "signature: missing or malformed signature")
	}
	doc.Signature = sigF.str

	if f, ok := fields["manifest"]; ok {
		if f.kind == kindNull {
			doc.ManifestNull = true
		} else {
			doc.Manifest = f.raw
		}
	}

	if f, ok := fields["files"]; ok {
		if f.kind != kindArray {
			return nil, herrors.New(herrors.InvalidArgument, "signature: files must be an array")
		}
		entries, _, err := scanArrayElements(f.raw, 0)
		if err != nil {
			return nil, herrors.Wrap(herrors.InvalidArgument, "signature: malformed files array", err)
		}
		for _, e := range entries {
			if e.kind != kindObject {
				return nil, herrors.New(herrors.InvalidArgument, "signature: file entry must be an object")
			}
			efields, _, err := scanObjectFields(e.raw, 0)
			if err != nil {
				return nil, herrors.Wrap(herrors.InvalidArgument, "signature: malformed file entry", err)
			}
			pathF, ok := efields["path"]
			if !ok || pathF.kind != kindString {
				return nil, herrors.New(herrors.InvalidArgument, "signature: file entry missing path")
			}
			hashF, ok := efields["hash"]
			if !ok || hashF.kind != kindString {
				return nil, herrors.New(herrors.InvalidArgument, "signature: file entry missing hash")
			}
			doc.Files = append(doc.Files, FileEntry{Path: pathF.str, Hash: strings.ToLower(hashF.str)})
		}
	}

	if f, ok := fields["platform"]; ok && f.kind != kindNull {
		if f.kind != kindObject {
			return nil, herrors.New(herrors.InvalidArgument, "signature: platform must be an object")
		}
		plat, err := parsePlatform(f.raw)
		if err != nil {
			return nil, err
		}
		doc.Platform = plat
	}

	return doc, nil
}

func parsePlatform(raw []byte) (*Platform, error) {
	fields, _, err := scanObjectFields(raw, 0)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "signature: malformed platform object", err)
	}
	p := &Platform{raw: raw, Platforms: make(map[string]PlatformArch)}

	pubF, ok := fields["public_key"]
	if !ok || pubF.kind != kindString {
		return nil, herrors.New(herrors.InvalidArgument, "signature: platform missing public_key")
	}
	p.PublicKey = pubF.str

	sigF, ok := fields["signature"]
	if !ok || sigF.kind != kindString {
		return nil, herrors.New(herrors.InvalidArgument, "signature: platform missing signature")
	}
	p.Signature = sigF.str

	platformsF, ok := fields["platforms"]
	if !ok || platformsF.kind != kindObject {
		return nil, herrors.New(herrors.InvalidArgument, "signature: platform missing platforms map")
	}
	p.platformsRaw = platformsF.raw

	archFields, _, err := scanObjectFields(platformsF.raw, 0)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "signature: malformed platforms map", err)
	}
	for arch, f := range archFields {
		if f.kind != kindObject {
			return nil, herrors.New(herrors.InvalidArgument, "signature: platform arch entry must be an object")
		}
		entryFields, _, err := scanObjectFields(f.raw, 0)
		if err != nil {
			return nil, herrors.Wrap(herrors.InvalidArgument, "signature: malformed platform arch entry", err)
		}
		hashF, ok := entryFields["hash"]
		if !ok || hashF.kind != kindString {
			return nil, herrors.New(herrors.InvalidArgument, "signature: platform arch entry missing hash")
		}
		canaryF, ok := entryFields["canary"]
		if !ok || canaryF.kind != kindString {
			return nil, herrors.New(herrors.InvalidArgument, "signature: platform arch entry missing canary")
		}
		p.Platforms[arch] = PlatformArch{Hash: strings.ToLower(hashF.str), Canary: canaryF.str}
	}

	return p, nil
}

// ApplicationPayload reconstructs the exact canonical bytes the
// application-layer Ed25519 signature covers: the document's fields in
// lexicographic order, excluding public_key and signature. Because the
// signer emits JCS-canonical output before signing, re-joining the
// scanned raw spans in order reproduces those bytes exactly — no
// re-marshaling step is needed or wanted.
func (d *Document) ApplicationPayload() []byte {
	return joinFields(d.fields, "public_key", "signature")
}

// PlatformPayload reconstructs the bytes the platform-layer Ed25519
// signature covers: the canonical form of the platforms map alone.
func (p *Platform) PlatformPayload() []byte {
	return p.platformsRaw
}

// joinFields re-emits data's object fields in fixed lexicographic
// order, skipping any key in exclude, as a single canonical JSON
// object literal.
func joinFields(fields map[string]field, exclude ...string) []byte {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(k)
		sb.WriteString(`":`)
		sb.Write(fields[k].raw)
	}
	sb.WriteByte('}')
	return []byte(sb.String())
}
