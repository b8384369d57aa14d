// Package integrity implements the Model Integrity Verifier (C12): a
// hash-before-decode gate that keeps an untrusted model artifact from ever
// reaching a deserializer. Stdlib-only — a hash comparison has no business
// being anything but stdlib.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// ErrHashMismatch means the artifact on disk does not match the configured
// authorized hash. Callers must treat this as a refusal to load, never as
// a reason to fall back to decoding anyway.
var ErrHashMismatch = fmt.Errorf("integrity: artifact hash mismatch")

// VerifyFile reads path and checks its SHA-256 against wantHex
// (lowercase hex, as configured). It returns the file bytes only on match,
// so a mismatched artifact's bytes never reach a caller.
func VerifyFile(path, wantHex string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("integrity: read %s: %w", path, err)
	}
	got := Sum(data)
	if wantHex == "" || got != normalizeHex(wantHex) {
		return nil, ErrHashMismatch
	}
	return data, nil
}

// Sum returns the lowercase-hex SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func normalizeHex(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range s {
		if c >= 'A' && c <= 'F' {
			c += 'a' - 'A'
		}
		out = append(out, byte(c))
	}
	return string(out)
}
