package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
// It signs wallet feed requests and outgoing order webhooks.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload under secretKey.
func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of payload under secretKey.
// Hex case is ignored; the comparison is constant-time.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hmac.Equal(mac.Sum(nil), got)
}

// BuildCanonicalString joins the signed request parts with newlines:
//
//	METHOD
//	PATH
//	TIMESTAMP
//	NONCE
//	hex(SHA-256(BODY))
//
// Hashing the body keeps the canonical string small for large transaction snapshots.
func (s *HMACSignatureService) BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string {
	sum := sha256.Sum256([]byte(body))
	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		strconv.FormatInt(timestamp, 10),
		nonce,
		hex.EncodeToString(sum[:]),
	}, "\n")
}
