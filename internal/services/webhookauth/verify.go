// Package webhookauth holds the signature primitives shared by the driver
// webhook validators. Each provider picks a scheme; every scheme runs the
// same replay guard after its signature check succeeds.
package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// VerifyHMACSHA512Hex checks a hex-encoded HMAC-SHA512 signature over the
// raw body in constant time.
func VerifyHMACSHA512Hex(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// VerifyHMACSHA256Base64 checks a base64-encoded HMAC-SHA256 signature over
// the raw body in constant time.
func VerifyHMACSHA256Base64(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// VerifySharedSecret compares a header-carried credential against the
// configured secret. No hashing: the secret itself is the signature.
func VerifySharedSecret(secret, header string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(header)) == 1
}
