// Package crypto implements the wire-compatible cipher envelope the
// Unitree cloud and local-signaling APIs use: AES in ECB mode with
// PKCS#7 padding, and RSA PKCS#1 v1.5 encryption chunked to the key's
// block size. Neither scheme is a security recommendation; they are
// implemented exactly as the vendor protocol requires for
// interoperability with an unmodified Go2.
package crypto

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
)

// GenerateAESKey returns a fresh 32-hex-character AES key, matching the
// vendor convention of using a random UUID's hex bytes as the key.
func GenerateAESKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate aes key: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, driverr.New(driverr.MalformedCipherText, "empty plaintext after decrypt")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > len(data) {
		return nil, driverr.New(driverr.MalformedCipherText, "invalid PKCS#7 padding")
	}
	return data[:len(data)-padding], nil
}

// ecbEncrypt encrypts plaintext block-by-block in ECB mode; the standard
// library deliberately omits an ECB mode, so the block loop is explicit.
func ecbEncrypt(block []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(block))
	bs := c.BlockSize()
	for i := 0; i < len(block); i += bs {
		c.Encrypt(out[i:i+bs], block[i:i+bs])
	}
	return out, nil
}

func ecbDecrypt(block []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := c.BlockSize()
	if len(block)%bs != 0 {
		return nil, driverr.New(driverr.MalformedCipherText, "ciphertext is not a multiple of the AES block size")
	}
	out := make([]byte, len(block))
	for i := 0; i < len(block); i += bs {
		c.Decrypt(out[i:i+bs], block[i:i+bs])
	}
	return out, nil
}

// AESEncrypt encrypts plaintext with AES-ECB/PKCS#7 under key (used as raw
// UTF-8 bytes, as the vendor protocol does) and returns base64 ciphertext.
func AESEncrypt(plaintext string, key string) (string, error) {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext, err := ecbEncrypt(padded, []byte(key))
	if err != nil {
		return "", fmt.Errorf("aes encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// AESDecrypt decrypts base64 ciphertext produced by AESEncrypt (or by the
// robot) back to plaintext.
func AESDecrypt(ciphertextB64 string, key string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", driverr.Wrap(driverr.MalformedCipherText, err, "base64 decode")
	}
	padded, err := ecbDecrypt(ciphertext, []byte(key))
	if err != nil {
		return "", err
	}
	plain, err := pkcs7Unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// RSALoadPublicKey parses a base64-encoded DER (or PEM) RSA public key as
// served by the Unitree cloud API and local "con_notify" handshake.
func RSALoadPublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some responses wrap the key in PEM framing before base64 is applied a
		// second time by the transport; fall back to treating it as PEM.
		block, _ := pem.Decode([]byte(encoded))
		if block == nil {
			return nil, driverr.Wrap(driverr.MalformedCipherText, err, "decode public key")
		}
		der = block.Bytes
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, driverr.Wrap(driverr.MalformedCipherText, err, "parse public key")
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, driverr.New(driverr.MalformedCipherText, "public key is not RSA")
	}
	return rsaPub, nil
}

// RSAEncrypt encrypts data with RSA PKCS#1 v1.5, splitting it into chunks
// of (key size - 11) bytes as the vendor protocol's Java-derived
// "RSA/ECB/PKCS1Padding" naming implies, then concatenates and base64s the
// result.
func RSAEncrypt(data string, pub *rsa.PublicKey) (string, error) {
	maxChunk := pub.Size() - 11
	if maxChunk <= 0 {
		return "", driverr.New(driverr.ConfigError, "RSA key too small for PKCS#1 v1.5")
	}

	plain := []byte(data)
	var out []byte
	for i := 0; i < len(plain); i += maxChunk {
		end := i + maxChunk
		if end > len(plain) {
			end = len(plain)
		}
		chunk, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plain[i:end])
		if err != nil {
			return "", fmt.Errorf("rsa encrypt chunk: %w", err)
		}
		out = append(out, chunk...)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
