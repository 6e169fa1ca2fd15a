package identity

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHashKey       = "0123456789abcdef0123456789abcdef-hash"
	testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testHashKey, testEncryptionKey)
	require.NoError(t, err)
	return h
}

func TestNewHasherRejectsBadKeys(t *testing.T) {
	cases := map[string]struct {
		hashKey string
		encKey  string
	}{
		"short hash key":       {hashKey: "short", encKey: testEncryptionKey},
		"missing encryption":   {hashKey: testHashKey, encKey: ""},
		"non hex encryption":   {hashKey: testHashKey, encKey: strings.Repeat("zz", 32)},
		"short encryption key": {hashKey: testHashKey, encKey: strings.Repeat("ab", 16)},
		"long encryption key":  {hashKey: testHashKey, encKey: strings.Repeat("ab", 33)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewHasher(tc.hashKey, tc.encKey)
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestDeterministicHashIsStable(t *testing.T) {
	h := newTestHasher(t)
	created := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)

	a := h.DeterministicHash(Attributes{Email: "A@X.com ", CreatedAt: created})
	b := h.DeterministicHash(Attributes{Email: "a@x.com", CreatedAt: created.In(time.FixedZone("x", 3600))})
	c := h.DeterministicHash(Attributes{Email: "b@x.com", CreatedAt: created})

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDeterministicHashDependsOnKey(t *testing.T) {
	h1 := newTestHasher(t)
	h2, err := NewHasher(strings.Repeat("k", 40), testEncryptionKey)
	require.NoError(t, err)

	attrs := Attributes{Email: "a@x.com", CreatedAt: time.Unix(1700000000, 0)}
	assert.NotEqual(t, h1.DeterministicHash(attrs), h2.DeterministicHash(attrs))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	for _, in := range []string{"", "9f1c4d2e-6b0a-4f6e-9d0c-1a2b3c4d5e6f", "ñandú 🚌", strings.Repeat("x", 4096)} {
		sealed, err := h.Encrypt(in)
		require.NoError(t, err)

		out, err := h.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Encrypt("same")
	require.NoError(t, err)
	b, err := h.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptFailsClosed(t *testing.T) {
	h := newTestHasher(t)

	sealed, err := h.Encrypt("business-id")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		_, err := h.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		require.ErrorIs(t, err, ErrDecrypt, "byte %d", i)
	}

	_, err = h.Decrypt("not base64!!")
	require.ErrorIs(t, err, ErrDecrypt)
	_, err = h.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrDecrypt)

	other, err := NewHasher(testHashKey, strings.Repeat("ff", 32))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	require.ErrorIs(t, err, ErrDecrypt)
}
