// Package apikey generates API key secrets and derives their public prefix.
//
// A key is a type tag followed by the hex encoding of SecretBytes random
// bytes, e.g. "snt_3f9a...". Only the prefix and a salted hash of the whole
// string are ever stored.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultTag   = "snt_"
	SecretBytes  = 32
	PrefixLength = 12
)

var ErrInvalidTag = errors.New("invalid api key tag")

// Generate returns a new raw key and its lookup prefix.
func Generate(tag string) (raw string, prefix string, err error) {
	if err := ValidateTag(tag); err != nil {
		return "", "", err
	}
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	raw = tag + hex.EncodeToString(buf)
	return raw, Prefix(raw), nil
}

// Prefix returns the first PrefixLength bytes of raw, or raw itself if shorter.
func Prefix(raw string) string {
	if len(raw) <= PrefixLength {
		return raw
	}
	return raw[:PrefixLength]
}

// HasTag reports whether raw carries the given tag. Callers use it to reject
// obviously foreign credentials before touching storage.
func HasTag(raw, tag string) bool {
	return strings.HasPrefix(raw, tag)
}

// ValidateTag requires a non-empty printable ASCII tag short enough to leave
// hex characters inside the prefix.
func ValidateTag(tag string) error {
	if tag == "" || len(tag) >= PrefixLength {
		return ErrInvalidTag
	}
	for _, r := range tag {
		if r <= ' ' || r > '~' {
			return ErrInvalidTag
		}
	}
	return nil
}
