// Package keys implements the API key core: textual encoding, keyed
// digests, the record lifecycle, and presented-key verification.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/flavien-hugs/apikey-hub/internal/config"
)

// RawKey pairs the one-time presentable key with the payload the digest
// covers. Presented is shown to the caller exactly once and never persisted.
type RawKey struct {
	Presented string // e.g. fhs_test_<secretHex><ownerID>
	Payload   string // secretHex + ownerID; input to the hasher.
}

// Codec encodes and decodes the textual API key representation. The
// environment tag is fixed at construction from process-wide configuration,
// so a key minted under "test" can never decode in a "live" deployment.
type Codec struct {
	appTag    string
	envTag    string
	secretLen int // random bytes before hex encoding
}

// NewCodec builds a Codec from the keys configuration.
func NewCodec(cfg config.KeysConfig) *Codec {
	return &Codec{
		appTag:    cfg.AppTag,
		envTag:    cfg.EnvTag(),
		secretLen: cfg.SecretLength,
	}
}

// Prefix returns the "{appTag}_{envTag}_" prefix every key of this
// deployment starts with.
func (c *Codec) Prefix() string {
	return c.appTag + "_" + c.envTag + "_"
}

// Generate mints a new raw key for the given owner.
func (c *Codec) Generate(ownerID string) (RawKey, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return RawKey{}, fmt.Errorf("generate api key: empty owner id")
	}
	secret := make([]byte, c.secretLen)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return RawKey{}, fmt.Errorf("generate api key: %w", err)
	}
	payload := hex.EncodeToString(secret) + ownerID
	return RawKey{
		Presented: c.Prefix() + payload,
		Payload:   payload,
	}, nil
}

// Decode validates the shape of a presented key and splits it into the
// secret payload and the owner hint carried in its tail. Decode is total:
// any input, including empty or truncated strings, yields ok=false rather
// than an error.
func (c *Codec) Decode(presented string) (payload, ownerHint string, ok bool) {
	prefix := c.Prefix()
	if !strings.HasPrefix(presented, prefix) {
		return "", "", false
	}
	payload = presented[len(prefix):]
	// Length sanity only: the secret is 2*secretLen hex chars and the owner
	// id must be non-empty behind it.
	if len(payload) <= c.secretLen*2 {
		return "", "", false
	}
	ownerHint = payload[c.secretLen*2:]
	return payload, ownerHint, true
}
