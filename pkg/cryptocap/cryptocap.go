// Package cryptocap implements Hull's crypto capability: the only path
// by which scripted handlers reach cryptographic primitives, per
// spec.md §4.2.
//
// Grounded on pkg/crypto's Ed25519Signer/Verify (hex-encoded
// sign/verify pair) and pkg/crypto/hasher.go's canonical-hash pattern,
// generalized to the fuller primitive set spec.md §4.2 and §8 call
// for: SHA-256/512, HMAC-SHA256, HMAC-SHA512/256, PBKDF2-HMAC-SHA256,
// Ed25519, secretbox/box, JWT HS256, constant-time equality and random
// bytes.
package cryptocap

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mindburn-labs/hull/pkg/herrors"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SHA512 returns the SHA-512 digest of data.
func SHA512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// HMACSHA512_256 computes HMAC using SHA-512/256 as the generic
// authenticator spec.md §4.2 calls for.
func HMACSHA512_256(key, data []byte) []byte {
	m := hmac.New(sha512.New512_256, key)
	m.Write(data)
	return m.Sum(nil)
}

// PBKDF2SHA256 derives keyLen bytes from password+salt using
// PBKDF2-HMAC-SHA256 with the given iteration count.
func PBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}

// ConstantTimeEqual performs a constant-time comparison, used for MAC
// and token checks so timing does not leak a partial match.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomBytes returns n cryptographically random bytes. It never
// zeroises its own return buffer — callers handling secret material
// (keys, salts) are responsible for zeroising once done, per spec.md's
// note that sensitive paths zeroise stack buffers.
func RandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, herrors.New(herrors.InvalidArgument, "cryptocap: negative byte count")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "cryptocap: random source failed", err)
	}
	return b, nil
}

// Base64URLEncode encodes data as unpadded base64url, per spec.md §8's
// round-trip property.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes s as base64url, accepting both the padded
// and unpadded alphabets. Invalid input decodes to absent rather than
// an error, per spec.md §8: "invalid input decodes to absent".
func Base64URLDecode(s string) ([]byte, bool) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, true
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, true
	}
	return nil, false
}

// Ed25519KeyPair is a generated signing key pair.
type Ed25519KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Ed25519GenerateKey generates a new Ed25519 key pair.
func Ed25519GenerateKey() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "cryptocap: key generation failed", err)
	}
	return &Ed25519KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Ed25519Sign signs msg with priv and returns the hex-encoded signature.
func Ed25519Sign(priv ed25519.PrivateKey, msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, msg))
}

// Ed25519Verify verifies a hex-encoded signature over msg against a
// hex-encoded public key.
func Ed25519Verify(pubHex, sigHex string, msg []byte) (bool, error) {
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, herrors.Wrap(herrors.InvalidArgument, "cryptocap: invalid public key hex", err)
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return false, herrors.New(herrors.InvalidArgument, "cryptocap: public key wrong size")
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, herrors.Wrap(herrors.InvalidArgument, "cryptocap: invalid signature hex", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), msg, sigBytes), nil
}

// SecretboxSeal encrypts msg under key using XSalsa20-Poly1305
// (secret-key authenticated encryption), generating a fresh random
// nonce and prepending it to the ciphertext.
func SecretboxSeal(key *[32]byte, msg []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "cryptocap: nonce generation failed", err)
	}
	out := secretbox.Seal(nonce[:], msg, &nonce, key)
	return out, nil
}

// SecretboxOpen decrypts a ciphertext produced by SecretboxSeal.
func SecretboxOpen(key *[32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, herrors.New(herrors.InvalidArgument, "cryptocap: ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	out, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, herrors.New(herrors.IntegrityFailure, "cryptocap: secretbox authentication failed")
	}
	return out, nil
}

// BoxKeyPair is a generated public-key encryption key pair.
type BoxKeyPair struct {
	PublicKey  *[32]byte
	PrivateKey *[32]byte
}

// BoxGenerateKey generates a new Curve25519 key pair for box.Seal/Open.
func BoxGenerateKey() (*BoxKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "cryptocap: box key generation failed", err)
	}
	return &BoxKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// BoxSeal encrypts msg from sender's private key to recipient's public
// key (public-key authenticated encryption).
func BoxSeal(recipientPub, senderPriv *[32]byte, msg []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, herrors.Wrap(herrors.RuntimeError, "cryptocap: nonce generation failed", err)
	}
	out := box.Seal(nonce[:], msg, &nonce, recipientPub, senderPriv)
	return out, nil
}

// BoxOpen decrypts a ciphertext produced by BoxSeal.
func BoxOpen(senderPub, recipientPriv *[32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, herrors.New(herrors.InvalidArgument, "cryptocap: ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	out, ok := box.Open(nil, sealed[24:], &nonce, senderPub, recipientPriv)
	if !ok {
		return nil, herrors.New(herrors.IntegrityFailure, "cryptocap: box authentication failed")
	}
	return out, nil
}

// JWTSignHS256 signs payload as JWT claims with an HMAC-SHA256 secret.
func JWTSignHS256(payload map[string]interface{}, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(payload))
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", herrors.Wrap(herrors.RuntimeError, "cryptocap: jwt sign failed", err)
	}
	return signed, nil
}

// JWTVerifyHS256 verifies a JWT's signature against secret and returns
// its claims. A tampered signature, wrong secret, or wrong algorithm
// fails closed.
func JWTVerifyHS256(tokenString string, secret []byte) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, herrors.Wrap(herrors.IntegrityFailure, "cryptocap: jwt verification failed", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, herrors.New(herrors.IntegrityFailure, "cryptocap: jwt claims malformed")
	}
	return claims, nil
}
