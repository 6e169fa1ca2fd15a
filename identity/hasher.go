package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	minHashKeyBytes   = 32
	encryptionKeySize = 32
	hashLength        = 32
	timestampLayout   = "2006-01-02T15:04:05.000Z"
)

var (
	// ErrInvalidKey is returned by NewHasher when key material is missing or mis-sized.
	ErrInvalidKey = errors.New("identity: invalid key material")
	// ErrDecrypt is returned when a ciphertext is malformed or fails authentication.
	ErrDecrypt = errors.New("identity: decryption failed")
)

// Attributes are the immutable inputs of the deterministic hash.
type Attributes struct {
	Email     string
	CreatedAt time.Time
}

// Hasher derives correlation hashes and seals identifiers. It holds no
// mutable state and is safe for concurrent use.
type Hasher struct {
	hashKey []byte
	aead    cipher.AEAD
}

// NewHasher validates both secrets and prepares the AES-256-GCM cipher.
// encryptionKeyHex must decode to exactly 32 bytes.
func NewHasher(hashKey, encryptionKeyHex string) (*Hasher, error) {
	if len(hashKey) < minHashKeyBytes {
		return nil, fmt.Errorf("%w: hash key must be at least %d bytes", ErrInvalidKey, minHashKeyBytes)
	}

	key, err := hex.DecodeString(strings.TrimSpace(encryptionKeyHex))
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key is not hex: %v", ErrInvalidKey, err)
	}
	if len(key) != encryptionKeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", ErrInvalidKey, encryptionKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &Hasher{
		hashKey: []byte(hashKey),
		aead:    aead,
	}, nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanonicalTimestamp truncates t to the precision used by the hash input.
func CanonicalTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// DeterministicHash returns the first 32 hex chars of
// HMAC-SHA-256(key, email | timestamp). Same attributes, same hash.
func (h *Hasher) DeterministicHash(attrs Attributes) string {
	canonical := NormalizeEmail(attrs.Email) + "|" + CanonicalTimestamp(attrs.CreatedAt).Format(timestampLayout)

	mac := hmac.New(sha256.New, h.hashKey)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))[:hashLength]
}

// Encrypt seals plaintext with a fresh random nonce. The output is
// base64(nonce || ciphertext || tag).
func (h *Hasher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, h.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := h.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any malformed or tampered input
// yields ErrDecrypt.
func (h *Hasher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}

	nonceSize := h.aead.NonceSize()
	if len(raw) < nonceSize+h.aead.Overhead() {
		return "", ErrDecrypt
	}

	plain, err := h.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
