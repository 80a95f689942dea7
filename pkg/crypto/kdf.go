package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Tuned for an interactive service process, not a
// one-shot CLI: moderate memory, low time cost.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2SaltLen = 16
)

var ErrInvalidSecret = errors.New("master encryption secret is empty")

// DeriveMasterKey derives a 32-byte AES-256 key from an operator-held secret
// using Argon2id. The salt is persisted alongside the derived key's consumer
// (here: encoded into the returned string) so the same secret always yields
// the same key once a salt has been chosen.
//
// Format: "<base64 salt>:<base64 key>".
func DeriveMasterKey(secret string) (key []byte, encoded string, err error) {
	if secret == "" {
		return nil, "", ErrInvalidSecret
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, "", fmt.Errorf("generate salt: %w", err)
	}
	key = argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, KeySize)
	encoded = base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key)
	return key, encoded, nil
}

// DeriveMasterKeyWithSalt re-derives a key from a secret and a previously
// generated base64 salt, so a key can be reconstructed deterministically
// across process restarts without persisting the raw key.
func DeriveMasterKeyWithSalt(secret string, saltB64 string) ([]byte, error) {
	if secret == "" {
		return nil, ErrInvalidSecret
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// SplitDerivedKey parses the "<salt>:<key>" format returned by DeriveMasterKey.
func SplitDerivedKey(encoded string) (salt, key []byte, err error) {
	parts := strings.SplitN(encoded, ":", 2)
	if len(parts) != 2 {
		return nil, nil, errors.New("malformed derived key encoding")
	}
	salt, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	key, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("decode key: %w", err)
	}
	return salt, key, nil
}
