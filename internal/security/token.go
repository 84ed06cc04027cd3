package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewRefreshTokenPlaintext returns 48 bytes of cryptographically secure
// random material, URL-safe-base64 encoded, per the specification.
func NewRefreshTokenPlaintext() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}

// HMACRefreshToken computes the HMAC-SHA256 of a refresh-token plaintext
// under the pepper. Only this value is ever persisted.
func HMACRefreshToken(plaintext, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(plaintext))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// EqualHMAC is a constant-time comparison helper for two base64-encoded
// HMAC digests.
func EqualHMAC(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AccessClaims is the access token's payload: subject, JWT version, and
// standard expiry.
type AccessClaims struct {
	Sub string `json:"sub"`
	Ver int64  `json:"ver"`
	jwt.RegisteredClaims
}

// accessTokenLeeway covers clock skew only; it never extends a token's
// effective lifetime beyond ttl+leeway.
const accessTokenLeeway = 60 * time.Second

// NewAccessToken mints an HS256-signed token carrying {sub, ver, exp}.
func NewAccessToken(secret, userID string, jwtVersion int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Sub: userID,
		Ver: jwtVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

var ErrTokenInvalid = errors.New("invalid access token")

// ParseAccessToken verifies the signature and standard claims (allowing
// accessTokenLeeway of skew) and returns the parsed claims. It does not
// check the caller's current jwt_version — that re-read happens at the
// auth-service layer, which is the only place a user record is available.
func ParseAccessToken(secret, tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	}, jwt.WithLeeway(accessTokenLeeway))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewChallengeCode returns an 8-character alphanumeric one-time code.
func NewChallengeCode() (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating challenge code: %w", err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf), nil
}
