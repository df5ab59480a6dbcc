package apikey

import (
	"strings"
	"testing"
)

func TestGenerate_ProducesParsableKey(t *testing.T) {
	gen, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(gen.RawKey, "rk_") {
		t.Fatalf("unexpected key prefix: %s", gen.RawKey)
	}
	if len(gen.Prefix) != prefixChars {
		t.Fatalf("expected %d-char prefix, got %q", prefixChars, gen.Prefix)
	}
	if len(gen.Hash) == 0 {
		t.Fatalf("expected non-empty hash")
	}

	prefix, secret, ok := Parse(gen.RawKey)
	if !ok {
		t.Fatalf("parse failed for generated key")
	}
	if prefix != gen.Prefix {
		t.Errorf("parsed prefix %q != generated prefix %q", prefix, gen.Prefix)
	}
	if len(secret) != secretChars {
		t.Errorf("expected %d-char secret, got %q", secretChars, secret)
	}
}

func TestGenerate_KeysAreUnique(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.RawKey == b.RawKey {
		t.Fatalf("expected distinct keys, got the same: %s", a.RawKey)
	}
}

func TestVerify_AcceptsMatchingKey(t *testing.T) {
	gen, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !Verify(gen.RawKey, gen.Hash) {
		t.Fatalf("expected verification to succeed for the key it was generated from")
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if Verify(a.RawKey, b.Hash) {
		t.Fatalf("expected verification to fail against a different client's hash")
	}
}

func TestParse_RejectsMalformedKeys(t *testing.T) {
	cases := []string{
		"",
		"rk_",
		"notrk_00000000000000000000000000000000",
		"rk_tooshort",
		"rk_zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", // right length, not hex
	}
	for _, raw := range cases {
		if _, _, ok := Parse(raw); ok {
			t.Errorf("expected Parse(%q) to fail", raw)
		}
	}
}

func TestVerify_RejectsMalformedKey(t *testing.T) {
	gen, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if Verify("rk_not-a-real-key", gen.Hash) {
		t.Fatalf("expected malformed key to fail verification")
	}
}
