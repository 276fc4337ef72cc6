package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash   = errors.New("invalid hash format")
	ErrInvalidParams = errors.New("invalid argon2 parameters")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Argon2Params) Validate() error {
	switch {
	case p.Iterations == 0:
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidParams)
	case p.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be positive", ErrInvalidParams)
	case p.Memory < 8*uint32(p.Parallelism):
		return fmt.Errorf("%w: memory must be at least 8*parallelism KiB", ErrInvalidParams)
	case p.SaltLength < 8:
		return fmt.Errorf("%w: salt length must be at least 8", ErrInvalidParams)
	case p.KeyLength < 16:
		return fmt.Errorf("%w: key length must be at least 16", ErrInvalidParams)
	}
	return nil
}

// Hasher produces and checks argon2id digests in PHC string form. Each digest
// records its own parameters, so raising the cost only affects new hashes.
type Hasher struct {
	params Argon2Params
	dummy  string
}

func NewHasher(params Argon2Params) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	h := &Hasher{params: params}
	dummy, err := h.Hash("sentinel-dummy-secret")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches digest. A malformed digest is an
// error, never a match.
func (h *Hasher) Verify(secret, digest string) (bool, error) {
	params, salt, key, err := decodeDigest(digest)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}

// VerifyDummy spends the same work as a real verification against a digest
// that never matches. Login uses it when the account does not exist.
func (h *Hasher) VerifyDummy(secret string) {
	_, _ = h.Verify(secret, h.dummy)
}

func decodeDigest(digest string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, ErrInvalidHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("%w: parse params: %v", ErrInvalidHash, err)
	}
	if params.Iterations == 0 || params.Parallelism == 0 || params.Memory == 0 {
		return params, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, fmt.Errorf("%w: decode salt", ErrInvalidHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, fmt.Errorf("%w: decode hash", ErrInvalidHash)
	}
	return params, salt, key, nil
}
