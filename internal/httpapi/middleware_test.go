package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shortlyhq/shortly/internal/ratelimit"
	"github.com/shortlyhq/shortly/internal/storage"
)

func TestRequestIDMiddlewareGeneratesWhenAbsent(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	requestIDMiddleware(next).ServeHTTP(w, req)

	require.NotEmpty(t, seen)
	require.Equal(t, seen, w.Header().Get(requestIDHeader))
}

func TestRequestIDMiddlewarePreservesIncoming(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "fixed-id")
	w := httptest.NewRecorder()
	requestIDMiddleware(next).ServeHTTP(w, req)

	require.Equal(t, "fixed-id", seen)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	req.RemoteAddr = "127.0.0.1:5000"
	require.Equal(t, "203.0.113.4", clientIP(req))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:5000"
	require.Equal(t, "198.51.100.9", clientIP(req))
}

func TestClientMetadataMiddlewareCapturesIPAndUserAgent(t *testing.T) {
	var meta clientMeta
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = clientMetaFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:5000"
	req.Header.Set("User-Agent", "test-agent/1.0")
	w := httptest.NewRecorder()
	clientMetadataMiddleware(next).ServeHTTP(w, req)

	require.Equal(t, "198.51.100.9", meta.IP)
	require.Equal(t, "test-agent/1.0", meta.UserAgent)
}

func TestAPIKeyMiddlewareAcceptsMatchingKey(t *testing.T) {
	key := uuid.New()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", nil)
	req.Header.Set("x-api-key", key.String())
	w := httptest.NewRecorder()
	apiKeyMiddleware(key)(next).ServeHTTP(w, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyMiddlewareRejectsWrongKey(t *testing.T) {
	key := uuid.New()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", nil)
	req.Header.Set("x-api-key", uuid.New().String())
	w := httptest.NewRecorder()
	apiKeyMiddleware(key)(next).ServeHTTP(w, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyMiddlewareRejectsMalformedKey(t *testing.T) {
	key := uuid.New()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", nil)
	req.Header.Set("x-api-key", "not-a-uuid")
	w := httptest.NewRecorder()
	apiKeyMiddleware(key)(next).ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitMiddlewareSetsHeadersAndAllows(t *testing.T) {
	limiter := ratelimit.New(5, 2, time.Minute)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/api/public/shorten", nil)
	req.RemoteAddr = "1.2.3.4:1111"
	w := httptest.NewRecorder()
	rateLimitMiddleware(limiter)(next).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	limiter := ratelimit.New(0, 1, time.Minute)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	wrapped := rateLimitMiddleware(limiter)(next)

	req := httptest.NewRequest(http.MethodPost, "/api/public/shorten", nil)
	req.RemoteAddr = "5.6.7.8:1111"
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestBearerOrCookieTokenPrefersAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})

	require.Equal(t, "abc.def.ghi", bearerOrCookieToken(req))
}

func TestBearerOrCookieTokenFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})

	require.Equal(t, "cookie-token", bearerOrCookieToken(req))
}

func TestSetAuthCookiesAttributes(t *testing.T) {
	w := httptest.NewRecorder()
	setAuthCookies(w, "access-val", "refresh-val", true)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}

	require.Equal(t, "/", byName["access_token"].Path)
	require.True(t, byName["access_token"].HttpOnly)
	require.True(t, byName["access_token"].Secure)
	require.Equal(t, http.SameSiteLaxMode, byName["access_token"].SameSite)

	require.Equal(t, "/api/v1/auth/refresh", byName["refresh_token"].Path)
	require.Equal(t, http.SameSiteStrictMode, byName["refresh_token"].SameSite)
}

type fakeVerifier struct {
	user storage.User
	err  error
}

func (f fakeVerifier) VerifyAccessToken(ctx context.Context, tokenString string) (storage.User, error) {
	return f.user, f.err
}

func TestRequireAccessTokenRejectsMissingToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
	w := httptest.NewRecorder()

	requireAccessToken(fakeVerifier{})(next).ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAccessTokenPassesUserThrough(t *testing.T) {
	expected := storage.User{ID: "user-1", Email: "u@example.com"}
	var got storage.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = userFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	requireAccessToken(fakeVerifier{user: expected})(next).ServeHTTP(w, req)
	require.Equal(t, expected.ID, got.ID)
}
