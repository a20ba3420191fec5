// Package manifest extracts and validates a script's declared
// capability manifest, per spec.md §3 and §4.5.
//
// Grounded on pkg/firewall's jsonschema.Compiler/AddResource/Compile
// usage (schema-validate an untrusted document before trusting it)
// and pkg/runtime/sandbox.SandboxPolicy's allowlist shape (FS/network
// prefix lists), adapted here to Hull's concrete manifest document:
// fs.read, fs.write, env, hosts.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mindburn-labs/hull/pkg/canonicalize"
	"github.com/mindburn-labs/hull/pkg/herrors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Bounds on list sizes, per spec.md §3: "env: []Name — environment
// variable names (≤32)"; fs/hosts lists are bounded but the exact cap
// is left to the implementation, so Hull uses a generous, explicit
// constant rather than leaving it unbounded.
const (
	MaxFSEntries  = 256
	MaxEnvEntries = 32
	MaxHosts      = 256
)

// docSchema is the fixed JSON Schema for the manifest document found
// at the script's `manifest` global/registry key.
const docSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "fs": {
      "type": "object",
      "properties": {
        "read":  {"type": "array", "items": {"type": "string"}},
        "write": {"type": "array", "items": {"type": "string"}}
      },
      "additionalProperties": false
    },
    "env":   {"type": "array", "items": {"type": "string"}},
    "hosts": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://hull.local/schema/manifest.json"
	if err := c.AddResource(schemaURL, strings.NewReader(docSchema)); err != nil {
		panic(fmt.Sprintf("manifest: schema resource load failed: %v", err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("manifest: schema compile failed: %v", err))
	}
	compiledSchema = compiled
}

// Manifest is an immutable snapshot extracted once after script load.
// See spec.md §3.
type Manifest struct {
	FSRead  []string `json:"fs_read,omitempty"`
	FSWrite []string `json:"fs_write,omitempty"`
	Env     []string `json:"env,omitempty"`
	Hosts   []string `json:"hosts,omitempty"`
	Present bool     `json:"present"`
}

// Empty returns the manifest for a script that declared none: Present
// is false and the sandbox stays off, per spec.md §4.5 ("Absence of
// any top-level manifest produces present = false and leaves the
// sandbox off — declared as a policy, not a bug").
func Empty() *Manifest {
	return &Manifest{Present: false}
}

// document is the wire shape of the manifest global.
type document struct {
	FS *struct {
		Read  []string `json:"read"`
		Write []string `json:"write"`
	} `json:"fs"`
	Env   []string `json:"env"`
	Hosts []string `json:"hosts"`
}

// Extract parses raw (the JSON-serialized value of the script's
// `manifest` global) into a Manifest. A nil/empty raw means no
// manifest was declared: Extract returns Empty(), nil. Lists beyond
// the bounded caps are truncated with a logged warning rather than
// rejected, per the resolved Open Question in DESIGN.md.
func Extract(log *slog.Logger, raw json.RawMessage) (*Manifest, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Empty(), nil
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "manifest: malformed document", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "manifest: schema validation failed", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "manifest: decode failed", err)
	}

	m := &Manifest{Present: true}
	if doc.FS != nil {
		m.FSRead = truncate(log, "fs.read", doc.FS.Read, MaxFSEntries)
		m.FSWrite = truncate(log, "fs.write", doc.FS.Write, MaxFSEntries)
	}
	m.Env = truncate(log, "env", doc.Env, MaxEnvEntries)
	m.Hosts = truncate(log, "hosts", doc.Hosts, MaxHosts)

	return m, nil
}

func truncate(log *slog.Logger, field string, entries []string, cap int) []string {
	if len(entries) <= cap {
		return entries
	}
	if log != nil {
		log.Warn("manifest list truncated", "field", field, "declared", len(entries), "cap", cap)
	}
	return entries[:cap]
}

// ImpliesDNS reports whether the manifest's declared hosts imply the
// DNS promise should be requested from the sandbox applier, even when
// no fs section was declared. Resolved Open Question (see DESIGN.md):
// yes, matching the source's behavior.
func (m *Manifest) ImpliesDNS() bool {
	return m.Present && len(m.Hosts) > 0
}

// AllowsHost reports whether host is permitted by the manifest's hosts
// allowlist, using case-insensitive exact match per spec.md §8.
func (m *Manifest) AllowsHost(host string) bool {
	if !m.Present {
		return false
	}
	host = strings.ToLower(host)
	for _, h := range m.Hosts {
		if strings.ToLower(h) == host {
			return true
		}
	}
	return false
}

// CanonicalHash returns the RFC 8785 canonical-JSON SHA-256 digest of
// m, always over the explicit-null-or-present form described in
// DESIGN.md's Open Question #3 resolution: signing-side canonicalization
// is a pure function of m's fields, so identical manifests always
// produce identical bytes regardless of how the in-memory value was
// constructed (spec.md §8: "Signature verification is a pure function
// of (key material, document, file bytes)").
func (m *Manifest) CanonicalHash() (string, error) {
	if m == nil || !m.Present {
		return canonicalize.CanonicalHash(nil)
	}
	return canonicalize.CanonicalHash(m)
}

// AllowsEnv reports whether name is declared in the manifest's env set.
func (m *Manifest) AllowsEnv(name string) bool {
	if !m.Present {
		return false
	}
	for _, n := range m.Env {
		if n == name {
			return true
		}
	}
	return false
}
