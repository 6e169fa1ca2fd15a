package internal

import (
	"strings"
	"testing"
)

func TestNewNumericCodeRange(t *testing.T) {
	seen := make(map[byte]bool)
	for i := 0; i < 2000; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("NewNumericCode failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if code[0] == '0' {
			t.Fatalf("code has leading zero: %q", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("code is not numeric: %q", code)
		}
		seen[code[0]] = true
	}
	if len(seen) < 9 {
		t.Fatalf("expected every leading digit 1-9 across samples, saw %d", len(seen))
	}
}

func TestNewNumericCodeRejectsBadDigits(t *testing.T) {
	for _, d := range []int{0, 3, 11} {
		if _, err := NewNumericCode(d); err == nil {
			t.Fatalf("expected error for %d digits", d)
		}
	}
}

func TestIsTokenID(t *testing.T) {
	if !IsTokenID(NewTokenID()) {
		t.Fatal("expected generated token id to validate")
	}
	for _, bad := range []string{"", "abc", "9f1c4d2e6b0a4f6e9d0c1a2b3c4d5e6f", "{9f1c4d2e-6b0a-4f6e-9d0c-1a2b3c4d5e6f}"} {
		if IsTokenID(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
