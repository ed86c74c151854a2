package keys

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives the stored digest of a key's secret payload. The digest is
// an HMAC-SHA256 over the payload with a server-held secret, so database
// read access alone is not enough to forge a matching digest.
type Hasher struct {
	secret []byte
}

// NewHasher builds a Hasher around the server secret.
func NewHasher(serverSecret string) *Hasher {
	return &Hasher{secret: []byte(serverSecret)}
}

// Digest computes the lowercase-hex HMAC-SHA256 of payload.
func (h *Hasher) Digest(payload string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest of payload and compares it against the
// stored digest in constant time.
func (h *Hasher) Verify(payload, storedDigest string) bool {
	computed := h.Digest(payload)
	return hmac.Equal([]byte(computed), []byte(storedDigest))
}
