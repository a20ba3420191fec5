package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLegacyDocumentHasNoBinaryHash(t *testing.T) {
	raw := []byte(`{"files":[],"manifest":null,"public_key":"aa","signature":"bb"}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, doc.Legacy)
	assert.True(t, doc.ManifestNull)
}

func TestParseCurrentDocumentWithPlatform(t *testing.T) {
	raw := []byte(`{"binary_hash":"aa","build":{"ts":1},"files":[{"path":"app.js","hash":"deadbeef"}],"manifest":{"hosts":["x"]},"platform":{"platforms":{"amd64":{"hash":"11","canary":"cc"}},"public_key":"pk","signature":"sig"},"public_key":"devpk","signature":"devsig","trampoline_hash":"th"}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	assert.False(t, doc.Legacy)
	assert.Equal(t, "aa", doc.BinaryHash)
	assert.Len(t, doc.Files, 1)
	assert.Equal(t, "app.js", doc.Files[0].Path)
	require.NotNil(t, doc.Platform)
	assert.Equal(t, "11", doc.Platform.Platforms["amd64"].Hash)
	assert.Equal(t, "cc", doc.Platform.Platforms["amd64"].Canary)
}

func TestApplicationPayloadExcludesKeyMaterial(t *testing.T) {
	raw := []byte(`{"binary_hash":"aa","files":[],"manifest":null,"public_key":"devpk","signature":"devsig","trampoline_hash":"th"}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	payload := string(doc.ApplicationPayload())
	assert.NotContains(t, payload, "devpk")
	assert.NotContains(t, payload, "devsig")
	assert.Contains(t, payload, `"binary_hash":"aa"`)
}

func TestApplicationPayloadIsLexicographicallyOrdered(t *testing.T) {
	raw := []byte(`{"trampoline_hash":"th","binary_hash":"aa","files":[],"manifest":null,"public_key":"devpk","signature":"devsig"}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	payload := string(doc.ApplicationPayload())
	assert.Equal(t, `{"binary_hash":"aa","files":[],"manifest":null,"trampoline_hash":"th"}`, payload)
}
