package webhookauth

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
)

// FetchCertificate downloads and parses the PEM certificate a provider
// publishes for webhook signing.
func FetchCertificate(client *http.Client, certURL string) (*x509.Certificate, error) {
	resp, err := client.Get(certURL)
	if err != nil {
		return nil, fmt.Errorf("webhookauth: failed to fetch certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhookauth: certificate endpoint returned %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webhookauth: failed to read certificate body: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("webhookauth: certificate is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("webhookauth: failed to parse certificate: %w", err)
	}
	return cert, nil
}

// ComposeCertMessage builds the string the certificate scheme signs:
// transmission id, transmission timestamp, webhook id and a CRC32 of the
// raw event payload, pipe-joined.
func ComposeCertMessage(transmissionID, transmissionTime, webhookID string, payload []byte) string {
	return fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, webhookID, crc32.ChecksumIEEE(payload))
}

// VerifyCertSignature checks a base64 RSA SHA-256 signature over message
// against the certificate's public key.
func VerifyCertSignature(cert *x509.Certificate, message, signature string) bool {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(message))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}
