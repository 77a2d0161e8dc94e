package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureVerifier authenticates inbound gateway notifications. The
// gateway signs the exact raw bytes of the payload with HMAC-SHA256 over a
// pre-shared webhook secret and sends the hex digest in a header.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier creates a verifier with the pre-shared webhook
// secret. Panics on an empty secret to fail fast during initialization.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	if secret == "" {
		panic("billing: webhook secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify reports whether signatureHeader is a valid signature over payload.
// Returns false on a missing header or empty payload. Verification failure
// is fatal to the single notification, never to the process: callers must
// reject the notification with a client error and must not parse it.
func (v *SignatureVerifier) Verify(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" || len(payload) == 0 {
		return false
	}

	h := hmac.New(sha256.New, v.secret)
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	// Constant-time comparison to prevent timing-based signature recovery.
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// Sign computes the hex HMAC-SHA256 digest of payload. Used by tests and
// local tooling to produce valid notification signatures.
func (v *SignatureVerifier) Sign(payload []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
