package crypto

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// MD5Hex returns the lowercase hex MD5 digest of s, as used for the cloud
// API's password hashing and request-signing nonce/sign fields.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HexToBase64 re-encodes a hex string as base64, used by the data-channel
// validation handshake which hex-encodes an MD5 digest and then expects it
// base64-framed on the wire.
func HexToBase64(hexStr string) (string, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("hex decode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
