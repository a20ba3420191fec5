package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanObjectFieldsFlat(t *testing.T) {
	raw := []byte(`{"a":"x","b":1,"c":true,"d":null,"e":[1,2],"f":{"g":"h"}}`)
	fields, next, err := scanObjectFields(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, len(raw), next)
	assert.Equal(t, "x", fields["a"].str)
	assert.Equal(t, kindNumber, fields["b"].kind)
	assert.Equal(t, kindBool, fields["c"].kind)
	assert.Equal(t, kindNull, fields["d"].kind)
	assert.Equal(t, kindArray, fields["e"].kind)
	assert.Equal(t, kindObject, fields["f"].kind)
}

func TestScanStringLiteralEscapes(t *testing.T) {
	raw := []byte(`"a\"b\\cA"`)
	s, next, err := scanStringLiteral(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, len(raw), next)
	assert.Equal(t, "a\"b\\cA", s)
}

func TestScanBalancedIgnoresBracesInStrings(t *testing.T) {
	raw := []byte(`{"a":"}{"}`)
	next, err := scanBalanced(raw, 0, '{', '}')
	require.NoError(t, err)
	assert.Equal(t, len(raw), next)
}

func TestScanArrayElements(t *testing.T) {
	raw := []byte(`[{"path":"a","hash":"1"},{"path":"b","hash":"2"}]`)
	elems, _, err := scanArrayElements(raw, 0)
	require.NoError(t, err)
	assert.Len(t, elems, 2)
}
