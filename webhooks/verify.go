package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/goliatone/go-paykit/core"
)

const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// Verifier authenticates a raw payload against the provider secret.
type Verifier interface {
	Verify(payload Payload, secret string) error
}

var (
	_ Verifier = HMACVerifier{}
	_ Verifier = TokenVerifier{}
)

// HMACVerifier checks an HMAC-SHA256 signature of the raw body carried in a
// header. Translators call it with the secret the engine hands them.
type HMACVerifier struct {
	Header string
	// Prefix is stripped from the header value, e.g. "sha256=".
	Prefix   string
	Encoding string
}

func (v HMACVerifier) Verify(payload Payload, secret string) error {
	header := payload.Header(v.Header)
	if header == "" {
		return verifyError(strings.TrimSpace(v.Header) + " signature header is required")
	}
	if strings.TrimSpace(secret) == "" {
		return verifyError("signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return verifyError("signature value is required")
	}

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case EncodingBase64:
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return verifyError("signature is not correctly encoded")
	}
	if subtle.ConstantTimeCompare(decoded, computeHMAC(payload.Body, secret)) != 1 {
		return verifyError("signature verification failed")
	}
	return nil
}

// Sign renders the header value a sender would attach to body.
func (v HMACVerifier) Sign(body []byte, secret string) string {
	sum := computeHMAC(body, secret)
	var encoded string
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case EncodingBase64:
		encoded = base64.StdEncoding.EncodeToString(sum)
	default:
		encoded = hex.EncodeToString(sum)
	}
	return strings.TrimSpace(v.Prefix) + encoded
}

func computeHMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// TokenVerifier compares a shared token header with the secret.
type TokenVerifier struct {
	Header string
}

func (v TokenVerifier) Verify(payload Payload, secret string) error {
	expected := strings.TrimSpace(secret)
	if expected == "" {
		return verifyError("verification token is required")
	}
	actual := payload.Header(v.Header)
	if actual == "" {
		return verifyError(strings.TrimSpace(v.Header) + " verification header is required")
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return verifyError("verification token mismatch")
	}
	return nil
}

func verifyError(message string) error {
	return core.NewWebhookError("webhooks: "+message, core.WithMethod("verify"))
}
