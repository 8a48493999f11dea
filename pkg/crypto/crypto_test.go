package crypto_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"testing"

	gocrypto "github.com/ethan/go2-webrtc-driver/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESRoundTrip(t *testing.T) {
	key, err := gocrypto.GenerateAESKey()
	require.NoError(t, err)
	require.Len(t, key, 32)

	plaintext := `{"sdp":"v=0...","type":"offer"}`
	ciphertext, err := gocrypto.AESEncrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := gocrypto.AESDecrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESRoundTrip_ExactBlockMultiple(t *testing.T) {
	key, err := gocrypto.GenerateAESKey()
	require.NoError(t, err)

	plaintext := strings.Repeat("A", 32) // exactly two AES blocks
	ciphertext, err := gocrypto.AESEncrypt(plaintext, key)
	require.NoError(t, err)

	decrypted, err := gocrypto.AESDecrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESDecrypt_InvalidBase64(t *testing.T) {
	_, err := gocrypto.AESDecrypt("not-valid-base64!!", "01234567890123456789012345678901")
	assert.Error(t, err)
}

func TestRSAEncrypt_ChunksLongInput(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemB64 := base64.StdEncoding.EncodeToString(der)

	pub, err := gocrypto.RSALoadPublicKey(pemB64)
	require.NoError(t, err)

	// Longer than (key size - 11) bytes to force chunking.
	payload := strings.Repeat("x", 200)
	encrypted, err := gocrypto.RSAEncrypt(payload, pub)
	require.NoError(t, err)
	assert.NotEmpty(t, encrypted)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	// 1024-bit key -> 128-byte blocks; two chunks needed for 200 bytes.
	assert.Equal(t, 256, len(raw))
}

func TestMD5HexAndBase64(t *testing.T) {
	digest := gocrypto.MD5Hex("UnitreeGo2_abc123")
	assert.Len(t, digest, 32)

	b64, err := gocrypto.HexToBase64(digest)
	require.NoError(t, err)
	assert.NotEmpty(t, b64)
}
