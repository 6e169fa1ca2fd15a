package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

const (
	minCodeDigits = 4
	maxCodeDigits = 10
)

// NewNumericCode returns a decimal code of exactly digits length drawn
// uniformly from [10^(digits-1), 10^digits - 1], so it never has a leading zero.
func NewNumericCode(digits int) (string, error) {
	if digits < minCodeDigits || digits > maxCodeDigits {
		return "", errors.New("invalid code digits")
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	n.Add(n, low)

	code := n.String()
	if len(code) != digits {
		return "", errors.New("invalid code generation length: " + strconv.Itoa(len(code)))
	}
	return code, nil
}

// NewTokenID returns a random UUID used for jti and reset-token values.
func NewTokenID() string {
	return uuid.NewString()
}

// IsTokenID reports whether s is a canonical UUID string.
func IsTokenID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
