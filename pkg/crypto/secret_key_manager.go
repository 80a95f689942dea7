package crypto

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// NewKeyManagerFromSecret builds a KeyManager whose version-1 key is derived
// from an operator-held secret via Argon2id, rather than a raw base64 key in
// the environment. The salt is persisted at saltPath on first run so the
// same key is reconstructed on every subsequent start; losing that file
// means losing access to every blob encrypted under it, so it lives next to
// the wallet store, not in a temp directory.
func NewKeyManagerFromSecret(secret, saltPath string) (*KeyManager, error) {
	km := &KeyManager{
		encryptors:   make(map[int]*Encryptor),
		envKeyPrefix: "MASTER_ENCRYPTION_KEY",
	}

	var key []byte
	if existing, err := os.ReadFile(saltPath); err == nil {
		saltB64 := string(existing)
		key, err = DeriveMasterKeyWithSalt(secret, saltB64)
		if err != nil {
			return nil, fmt.Errorf("derive key from existing salt: %w", err)
		}
	} else {
		var encoded string
		var derr error
		key, encoded, derr = DeriveMasterKey(secret)
		if derr != nil {
			return nil, fmt.Errorf("derive key: %w", derr)
		}
		saltOnly, _, splitErr := SplitDerivedKey(encoded)
		if splitErr != nil {
			return nil, fmt.Errorf("split derived key: %w", splitErr)
		}
		if err := os.MkdirAll(filepath.Dir(saltPath), 0o700); err != nil {
			return nil, fmt.Errorf("create salt dir: %w", err)
		}
		if err := os.WriteFile(saltPath, []byte(encodeSaltFile(saltOnly)), 0o600); err != nil {
			return nil, fmt.Errorf("write salt file: %w", err)
		}
	}

	enc, err := NewEncryptor(key, 1)
	if err != nil {
		return nil, fmt.Errorf("create encryptor: %w", err)
	}
	km.encryptors[1] = enc
	km.currentVer = 1

	// Optional rotated versions still load from raw base64 env vars, same as
	// the default constructor, so key rotation does not require re-deriving.
	for v := 2; v <= 10; v++ {
		envName := fmt.Sprintf("%s_V%d", km.envKeyPrefix, v)
		if err := km.loadKey(v, envName); err == nil {
			km.currentVer = v
		}
	}

	return km, nil
}

func encodeSaltFile(salt []byte) string {
	return base64.StdEncoding.EncodeToString(salt)
}
