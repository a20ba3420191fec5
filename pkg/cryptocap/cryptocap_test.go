package cryptocap

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSHA256KnownAnswer(t *testing.T) {
	// "what do ya want for nothing?" with key "Jefe" — spec.md §8 known-answer vector.
	got := HMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(got))
}

func TestEd25519RoundTrip(t *testing.T) {
	kp, err := Ed25519GenerateKey()
	require.NoError(t, err)

	msg := []byte("hello hull")
	sig := Ed25519Sign(kp.PrivateKey, msg)

	ok, err := Ed25519Verify(hex.EncodeToString(kp.PublicKey), sig, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Ed25519Verify(hex.EncodeToString(kp.PublicKey), sig, []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretboxRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	sealed, err := SecretboxSeal(&key, []byte("secret payload"))
	require.NoError(t, err)

	opened, err := SecretboxOpen(&key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", string(opened))

	sealed[len(sealed)-1] ^= 0xFF
	_, err = SecretboxOpen(&key, sealed)
	assert.Error(t, err)
}

func TestBoxRoundTrip(t *testing.T) {
	alice, err := BoxGenerateKey()
	require.NoError(t, err)
	bob, err := BoxGenerateKey()
	require.NoError(t, err)

	sealed, err := BoxSeal(bob.PublicKey, alice.PrivateKey, []byte("hi bob"))
	require.NoError(t, err)

	opened, err := BoxOpen(alice.PublicKey, bob.PrivateKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", string(opened))
}

func TestJWTHS256RoundTrip(t *testing.T) {
	secret := []byte("top-secret")
	token, err := JWTSignHS256(map[string]interface{}{"sub": "user1"}, secret)
	require.NoError(t, err)

	claims, err := JWTVerifyHS256(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims["sub"])

	_, err = JWTVerifyHS256(token, []byte("wrong-secret"))
	assert.Error(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = JWTVerifyHS256(tampered, secret)
	assert.Error(t, err)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
}

func TestPBKDF2Deterministic(t *testing.T) {
	a := PBKDF2SHA256([]byte("password"), []byte("salt"), 1000, 32)
	b := PBKDF2SHA256([]byte("password"), []byte("salt"), 1000, 32)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestRandomBytesLength(t *testing.T) {
	b, err := RandomBytes(16)
	require.NoError(t, err)
	assert.Len(t, b, 16)
}

func TestBase64URLRoundTrip(t *testing.T) {
	for _, s := range [][]byte{
		nil,
		[]byte(""),
		[]byte("hello hull"),
		{0x00, 0x01, 0xff, 0xfe, 0x10},
	} {
		encoded := Base64URLEncode(s)
		decoded, ok := Base64URLDecode(encoded)
		require.True(t, ok)
		assert.Equal(t, string(s), string(decoded))
	}
}

func TestBase64URLDecodeInvalidInputIsAbsent(t *testing.T) {
	_, ok := Base64URLDecode("not valid base64url!!")
	assert.False(t, ok)
}
