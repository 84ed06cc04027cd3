package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/ratelimit"
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxClientMeta
)

// clientMeta carries the per-request {ip, user_agent} pair extracted by
// the clientMetadata middleware, per §4.8.
type clientMeta struct {
	IP        string
	UserAgent string
}

const requestIDHeader = "x-request-id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), ctxRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// clientIP resolves the caller's address: first X-Forwarded-For entry,
// then X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientMetadataMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := clientMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
		ctx := context.WithValue(r.Context(), ctxClientMeta, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientMetaFromContext(ctx context.Context) clientMeta {
	meta, _ := ctx.Value(ctxClientMeta).(clientMeta)
	return meta
}

// apiKeyMiddleware parses the x-api-key header as a UUID (per §6's
// configuration surface) and constant-time compares it against the
// configured key.
func apiKeyMiddleware(expected uuid.UUID) func(http.Handler) http.Handler {
	expectedStr := expected.String()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := uuid.Parse(r.Header.Get("x-api-key"))
			if err != nil || subtle.ConstantTimeCompare([]byte(got.String()), []byte(expectedStr)) != 1 {
				writeError(w, apierr.Unauthorizedf("invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware applies a token-bucket check keyed by client IP;
// on rejection it sets Retry-After and X-RateLimit-* headers per §4.8.
func rateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.Allow(clientIP(r))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
				w.Header().Set("X-RateLimit-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
				writeJSON(w, http.StatusTooManyRequests, envelope{Success: false, Message: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerOrCookieToken extracts an access token following the original
// implementation's precedence: Authorization: Bearer first, then the
// access_token cookie.
func bearerOrCookieToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie("access_token"); err == nil {
		return c.Value
	}
	return ""
}

const (
	accessCookieMaxAge  = 30 * time.Minute
	refreshCookieMaxAge = 30 * 24 * time.Hour
)

// setAuthCookies issues access_token and refresh_token per §4.8's exact
// attributes; secure toggles the Secure flag from the environment.
func setAuthCookies(w http.ResponseWriter, access, refresh string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    access,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(accessCookieMaxAge.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refresh,
		Path:     "/api/v1/auth/refresh",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(refreshCookieMaxAge.Seconds()),
	})
}
