package jwt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopePrefix = "v1."
	sealInfo       = "authcore/token/seal/v1"
	signInfo       = "authcore/token/sign/v1"
	signKeySize    = 32
)

var envelopeAAD = []byte("authcore.token.v1")

var errEnvelope = errors.New("malformed token envelope")

type keys struct {
	sign []byte
	aead cipher.AEAD
}

func deriveKeys(secret []byte) (*keys, error) {
	sealKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), sealKey); err != nil {
		return nil, err
	}
	signKey := make([]byte, signKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(signInfo)), signKey); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(sealKey)
	if err != nil {
		return nil, err
	}
	return &keys{sign: signKey, aead: aead}, nil
}

func (k *keys) seal(jws string) (string, error) {
	nonce := make([]byte, k.aead.NonceSize(), k.aead.NonceSize()+len(jws)+k.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := k.aead.Seal(nonce, nonce, []byte(jws), envelopeAAD)
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (k *keys) open(token string) (string, error) {
	body, ok := strings.CutPrefix(token, envelopePrefix)
	if !ok {
		return "", errEnvelope
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", errEnvelope
	}

	nonceSize := k.aead.NonceSize()
	if len(raw) < nonceSize+k.aead.Overhead() {
		return "", errEnvelope
	}
	plain, err := k.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], envelopeAAD)
	if err != nil {
		return "", errEnvelope
	}
	return string(plain), nil
}
