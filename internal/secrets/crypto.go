// Package secrets decrypts provider credentials stored at rest. Ciphertexts
// use AES-256-GCM in the format "ivHex:tagHex:dataHex"; plaintext keys exist
// only for the lifetime of one request and must never be persisted or logged.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const nonceSize = 16

var (
	ErrBadKey        = errors.New("encryption key must be 32 bytes of hex")
	ErrBadCiphertext = errors.New("invalid ciphertext format")
)

// Decrypter turns a stored ciphertext into a plaintext credential.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Keychain implements Decrypter over a single symmetric key.
type Keychain struct {
	aead cipher.AEAD
}

// NewKeychain builds a Keychain from a hex-encoded 256-bit key.
func NewKeychain(hexKey string) (*Keychain, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrBadKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Keychain{aead: aead}, nil
}

// Encrypt seals plaintext into the iv:tag:data hex format.
func (k *Keychain) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	sealed := k.aead.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the tag; split it back out to match the stored format.
	tagStart := len(sealed) - k.aead.Overhead()
	data, tag := sealed[:tagStart], sealed[tagStart:]
	return fmt.Sprintf("%s:%s:%s", hex.EncodeToString(iv), hex.EncodeToString(tag), hex.EncodeToString(data)), nil
}

// Decrypt opens a ciphertext produced by Encrypt (or the original encryptor).
func (k *Keychain) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", ErrBadCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != nonceSize {
		return "", ErrBadCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrBadCiphertext
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrBadCiphertext
	}
	plaintext, err := k.aead.Open(nil, iv, append(data, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value looks like an iv:tag:data ciphertext.
func IsEncrypted(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		if _, err := hex.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}
