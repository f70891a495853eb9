// Package crypto protects provider API keys stored in the settings database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EncryptedPrefix marks values sealed with AES-256-GCM.
const EncryptedPrefix = "enc:"

var (
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes for AES-256")
	ErrInvalidCipher = errors.New("invalid ciphertext")
	ErrNoKey         = errors.New("value is encrypted but no encryption key is configured")
)

// Encryptor provides AES-256-GCM encryption for sensitive data.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates a new Encryptor with the given 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+1 {
		return "", ErrInvalidCipher
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// Obfuscate base64-encodes a key so it is not stored in clear text.
// It is not encryption.
func Obfuscate(plain string) string {
	if plain == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// Deobfuscate reverses Obfuscate. Values that are not valid base64 are
// returned unchanged so keys saved in clear text keep working.
func Deobfuscate(stored string) string {
	if stored == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return stored
	}
	return string(decoded)
}

// KeyCodec encodes API keys for storage: AES-GCM when an Encryptor is set,
// base64 obfuscation otherwise.
type KeyCodec struct {
	enc *Encryptor
}

// NewKeyCodec builds a codec. A nil or empty key selects obfuscation only.
func NewKeyCodec(key []byte) (*KeyCodec, error) {
	if len(key) == 0 {
		return &KeyCodec{}, nil
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	return &KeyCodec{enc: enc}, nil
}

// Encrypted reports whether new values are sealed with AES-GCM.
func (c *KeyCodec) Encrypted() bool {
	return c.enc != nil
}

// Encode prepares a plain API key for storage.
func (c *KeyCodec) Encode(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if c.enc == nil {
		return Obfuscate(plain), nil
	}
	sealed, err := c.enc.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return EncryptedPrefix + sealed, nil
}

// Decode recovers the plain API key from a stored value.
func (c *KeyCodec) Decode(stored string) (string, error) {
	if rest, ok := strings.CutPrefix(stored, EncryptedPrefix); ok {
		if c.enc == nil {
			return "", ErrNoKey
		}
		return c.enc.Decrypt(rest)
	}
	return Deobfuscate(stored), nil
}

// Mask renders a key for display, keeping only the last four characters.
func Mask(plain string) string {
	if plain == "" {
		return ""
	}
	if len(plain) <= 4 {
		return strings.Repeat("*", len(plain))
	}
	return strings.Repeat("*", 8) + plain[len(plain)-4:]
}
