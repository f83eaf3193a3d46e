// Package security encrypts exchange credentials at rest with NaCl secretbox.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrDecrypt = errors.New("cannot decrypt credential")

// ErrNoKey means EXCHANGE_CREDENTIALS_KEY is not set.
var ErrNoKey = errors.New("credentials key is not configured")

func loadKey(encoded string) (*[32]byte, error) {
	if encoded == "" {
		return nil, ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode credentials key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptWithKey seals plaintext and returns base64(nonce || box).
func EncryptWithKey(encodedKey, plaintext string) (string, error) {
	key, err := loadKey(encodedKey)
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptWithKey opens a value produced by EncryptWithKey.
func DecryptWithKey(encodedKey, ciphertext string) (string, error) {
	key, err := loadKey(encodedKey)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// EncryptString uses the key from EXCHANGE_CREDENTIALS_KEY.
func EncryptString(plaintext string) (string, error) {
	return EncryptWithKey(GetConfig().CredentialsKey, plaintext)
}

// DecryptString uses the key from EXCHANGE_CREDENTIALS_KEY.
func DecryptString(ciphertext string) (string, error) {
	return DecryptWithKey(GetConfig().CredentialsKey, ciphertext)
}
