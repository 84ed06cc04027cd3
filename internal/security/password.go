// Package security implements the hash and token primitives: Argon2id
// password/code hashing under a pepper, HMAC of refresh tokens, and
// signed access tokens.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters fixed by the specification: m=16 MiB, t=3, p=1,
// v=1.3 (argon2.Version == 0x13).
const (
	argonMemoryKiB = 16 * 1024
	argonTime      = 3
	argonThreads   = 1
	argonKeyLen    = 32
	argonSaltLen   = 16
)

// blockedFormatChars are the invisible/bidi control characters rejected
// during password normalization, taken from the reference implementation
// (original_source/src/core/security/password.rs) since the
// specification only describes them as "a fixed list".
var blockedFormatChars = map[rune]struct{}{
	'​': {}, '‌': {}, '‍': {}, '‎': {}, '‏': {},
	'‪': {}, '‫': {}, '‬': {}, '‭': {}, '‮': {},
	'⁦': {}, '⁧': {}, '⁨': {}, '⁩': {},
	'﻿': {},
}

var (
	ErrWeakPassword     = errors.New("password does not meet strength requirements")
	ErrInvalidCharacter = errors.New("password contains a disallowed character")
	ErrTooLong          = errors.New("password exceeds maximum length")
)

// NormalizePassword applies NFC normalization, rejects control and
// disallowed bidi/format characters, enforces the 128-byte ceiling, and
// runs a minimal strength estimate (length >= 10 code points, not purely
// numeric/alphabetic repetition). It returns the normalized password.
func NormalizePassword(raw string) (string, error) {
	normalized := nfc(raw)

	count := 0
	for _, r := range normalized {
		count++
		if unicode.IsControl(r) {
			return "", ErrInvalidCharacter
		}
		if _, blocked := blockedFormatChars[r]; blocked {
			return "", ErrInvalidCharacter
		}
	}

	if len(normalized) > 128 {
		return "", ErrTooLong
	}
	if count < 10 {
		return "", ErrWeakPassword
	}
	if !hasStrength(normalized) {
		return "", ErrWeakPassword
	}

	return normalized, nil
}

// hasStrength rejects passwords made of a single repeated character or a
// single character class only (all digits, or all one case of letters),
// a minimal stand-in for a full estimator.
func hasStrength(pw string) bool {
	var hasDigit, hasLower, hasUpper, hasOther bool
	allSame := true
	var first rune = -1
	for _, r := range pw {
		if first == -1 {
			first = r
		} else if r != first {
			allSame = false
		}
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		default:
			hasOther = true
		}
	}
	if allSame {
		return false
	}
	classes := 0
	for _, b := range []bool{hasDigit, hasLower, hasUpper, hasOther} {
		if b {
			classes++
		}
	}
	return classes >= 2
}

// HashPassword Argon2id-hashes normalized password material under the
// pepper, returning a PHC-formatted string.
func HashPassword(password, pepper string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password+pepper), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLen)
	return encodePHC(salt, hash), nil
}

// VerifyPassword compares password (with pepper) against a PHC string
// produced by HashPassword, in constant time.
func VerifyPassword(phc, password, pepper string) (bool, error) {
	salt, want, err := decodePHC(phc)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password+pepper), salt, argonTime, argonMemoryKiB, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// encodePHC produces a PHC-like string: $argon2id$v=19$m=16384,t=3,p=1$salt$hash
func encodePHC(salt, hash []byte) string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonTime, argonThreads,
		b64.EncodeToString(salt), b64.EncodeToString(hash))
}

func decodePHC(phc string) (salt, hash []byte, err error) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, errors.New("malformed password hash")
	}
	b64 := base64.RawStdEncoding
	salt, err = b64.DecodeString(parts[4])
	if err != nil {
		return nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	hash, err = b64.DecodeString(parts[5])
	if err != nil {
		return nil, nil, fmt.Errorf("decoding hash: %w", err)
	}
	return salt, hash, nil
}
