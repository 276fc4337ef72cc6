package security

import (
	"errors"
	"strings"
	"testing"
)

var testParams = Argon2Params{Memory: 64 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testParams)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func TestHashVerify(t *testing.T) {
	h := newTestHasher(t)

	digest, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if digest == "s3cret" || strings.Contains(digest, "s3cret") {
		t.Fatalf("digest must not contain the secret")
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$m=65536,t=2,p=1$") {
		t.Fatalf("unexpected digest format %q", digest)
	}

	ok, err := h.Verify("s3cret", digest)
	if err != nil || !ok {
		t.Fatalf("expected secret to verify, ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong", digest)
	if err != nil || ok {
		t.Fatalf("expected wrong secret to fail, ok=%v err=%v", ok, err)
	}
}

func TestHashIsSalted(t *testing.T) {
	h := newTestHasher(t)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatalf("expected distinct digests for the same secret")
	}
}

func TestVerifyUsesDigestParams(t *testing.T) {
	old := newTestHasher(t)
	digest, err := old.Hash("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	stronger := testParams
	stronger.Iterations = 3
	h, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	ok, err := h.Verify("s3cret", digest)
	if err != nil || !ok {
		t.Fatalf("expected old digest to verify after raising cost")
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := newTestHasher(t)
	for _, digest := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=65536,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=0,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=2,p=1$!!$aGFzaA",
	} {
		ok, err := h.Verify("s3cret", digest)
		if ok || !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("digest %q: expected ErrInvalidHash, got ok=%v err=%v", digest, ok, err)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	bad := []Argon2Params{
		{Memory: 64 * 1024, Iterations: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 4, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 4, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for _, p := range bad {
		if _, err := NewHasher(p); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("params %+v: expected ErrInvalidParams, got %v", p, err)
		}
	}
	if err := DefaultArgon2Params().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
}
