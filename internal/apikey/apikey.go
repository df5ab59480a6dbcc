// Package apikey generates and verifies the rk_<32hex> API keys clients
// authenticate with. Only a lookup prefix and a bcrypt hash of the secret
// half are ever persisted; the raw key exists only at creation time.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	keyScheme   = "rk_"
	prefixChars = 8  // hex chars stored plaintext for O(1) lookup
	secretChars = 24 // hex chars bcrypt-hashed at rest
	totalChars  = prefixChars + secretChars
)

// Generated is the material produced for a brand new client key. RawKey is
// shown to the caller exactly once; only Prefix and Hash are persisted.
type Generated struct {
	RawKey string
	Prefix string
	Hash   []byte
}

// Generate mints a new rk_<32hex> key and bcrypt-hashes its secret half.
func Generate() (Generated, error) {
	b := make([]byte, totalChars/2)
	if _, err := rand.Read(b); err != nil {
		return Generated{}, fmt.Errorf("generate api key: %w", err)
	}
	hexKey := hex.EncodeToString(b)
	prefix, secret := hexKey[:prefixChars], hexKey[prefixChars:]

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Generated{}, fmt.Errorf("hash api key secret: %w", err)
	}

	return Generated{
		RawKey: keyScheme + hexKey,
		Prefix: prefix,
		Hash:   hash,
	}, nil
}

// Parse splits a raw rk_<32hex> key into its lookup prefix and secret, or
// reports ok=false if the key is malformed.
func Parse(raw string) (prefix, secret string, ok bool) {
	if !strings.HasPrefix(raw, keyScheme) {
		return "", "", false
	}
	body := strings.TrimPrefix(raw, keyScheme)
	if len(body) != totalChars {
		return "", "", false
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", "", false
	}
	return body[:prefixChars], body[prefixChars:], true
}

// Verify reports whether raw matches the bcrypt hash recorded for a client.
// A malformed key always fails verification rather than reaching bcrypt.
func Verify(raw string, hash []byte) bool {
	_, secret, ok := Parse(raw)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
