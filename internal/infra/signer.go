package infra

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Signer handles exchange API authentication (HMAC-SHA256).
// Keys are stored as []byte to allow memory wiping.
type Signer struct {
	accessKey  []byte
	secretKey  []byte
	passphrase []byte
}

// NewSigner creates a new signer.
func NewSigner(accessKey, secretKey, passphrase string) *Signer {
	return &Signer{
		accessKey:  []byte(accessKey),
		secretKey:  []byte(secretKey),
		passphrase: []byte(passphrase),
	}
}

// Wipe clears the keys from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	wipeSlice(s.accessKey)
	wipeSlice(s.secretKey)
	wipeSlice(s.passphrase)
}

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateHeaders creates the signed headers for one request.
// Pre-signature string: timestamp + method + path + query + body.
func (s *Signer) GenerateHeaders(method, path, query, body string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	payload := timestamp + method + path + query + body
	signature := s.computeHmacSha256(payload)

	return map[string]string{
		"ACCESS-KEY":        string(s.accessKey),
		"ACCESS-SIGN":       signature,
		"ACCESS-TIMESTAMP":  timestamp,
		"ACCESS-PASSPHRASE": string(s.passphrase),
		"Content-Type":      "application/json",
		"locale":            "en-US",
	}
}

func (s *Signer) computeHmacSha256(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
