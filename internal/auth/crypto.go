// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SECURITY: Refresh tokens are long-lived credentials; they are sealed
// with AES-256-GCM before touching disk. The key is derived from a
// machine-local random secret, so a copied state file is useless on
// another machine.

const (
	sealedPrefix    = "enc:"
	secretFileName  = "secret"
	pbkdf2Iters     = 4096
	derivedKeyBytes = 32
)

// pbkdf2 needs a salt even with a random secret; fixed is fine here
// because the secret itself is unique per machine.
var sealSalt = []byte("dora-token-store-v1")

var errSealedFormat = errors.New("malformed sealed value")

// Sealer encrypts and decrypts small strings at rest.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from the secret file under dir,
// creating the secret on first use.
func NewSealer(dir string) (*Sealer, error) {
	secret, err := loadOrCreateSecret(filepath.Join(dir, secretFileName))
	if err != nil {
		return nil, err
	}
	key := pbkdf2.Key(secret, sealSalt, pbkdf2Iters, derivedKeyBytes, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext into a prefixed, base64 string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Unprefixed input is returned
// as-is so plaintext values written by older builds keep working.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", errSealedFormat
	}
	if len(raw) < s.aead.NonceSize() {
		return "", errSealedFormat
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unseal value: %w", err)
	}
	return string(plaintext), nil
}

func loadOrCreateSecret(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil && len(data) >= 32 {
		return data, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret dir: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("failed to write secret: %w", err)
	}
	return secret, nil
}
