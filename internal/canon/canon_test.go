package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	v, err := Decode([]byte(`{"zeta":1,"alpha":2,"mid":{"b":1,"a":2}}`))
	require.NoError(t, err)

	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":{"a":2,"b":1},"zeta":1}`, string(out))
}

func TestCanonicalizePreservesNumberRendering(t *testing.T) {
	v, err := Decode([]byte(`{"a":1,"b":1.50,"c":-0,"d":1e3}`))
	require.NoError(t, err)

	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":1.50,"c":-0,"d":1e3}`, string(out))
}

func TestCanonicalizeNoHTMLEscaping(t *testing.T) {
	v, err := Decode([]byte(`{"cmd":"a < b && c > d"}`))
	require.NoError(t, err)

	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"cmd":"a < b && c > d"}`, string(out))
}

func TestCanonicalizeArraysKeepOrder(t *testing.T) {
	v, err := Decode([]byte(`{"tags":["z","a","m"]}`))
	require.NoError(t, err)

	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"tags":["z","a","m"]}`, string(out))
}

func TestCanonicalizeNullAndBool(t *testing.T) {
	v, err := Decode([]byte(`{"a":null,"b":true,"c":false}`))
	require.NoError(t, err)

	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":true,"c":false}`, string(out))
}

func TestHashTreeDeterministic(t *testing.T) {
	v1, err := Decode([]byte(`{"b":2,"a":1}`))
	require.NoError(t, err)
	v2, err := Decode([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)

	h1, err := HashTree(v1)
	require.NoError(t, err)
	h2, err := HashTree(v2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashEventJSONStripsExcludedFields(t *testing.T) {
	with := []byte(`{"type":"note","branch":"main","hash":"deadbeef","digests":[{"alg":"sha256"}],"schema_version":1,"event_family":"signal","event_level":"info","payload":{"text":"hi"}}`)
	without := []byte(`{"type":"note","branch":"main","payload":{"text":"hi"}}`)

	h1, err := HashEventJSON(with)
	require.NoError(t, err)
	h2, err := HashEventJSON(without)
	require.NoError(t, err)
	assert.Equal(t, h2, h1)
}

func TestHashEventJSONIncludesUnknownFields(t *testing.T) {
	base := []byte(`{"type":"note","payload":{"text":"hi"}}`)
	extended := []byte(`{"type":"note","payload":{"text":"hi"},"future_field":"x"}`)

	h1, err := HashEventJSON(base)
	require.NoError(t, err)
	h2, err := HashEventJSON(extended)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashEventJSONMalformed(t *testing.T) {
	_, err := HashEventJSON([]byte(`{not json`))
	assert.Error(t, err)
}

func TestSHA256Hex(t *testing.T) {
	// sha256("") is a well-known vector.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil))
}
