package httpapi

import (
	"context"
	"net/http"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/storage"
)

type accessTokenVerifier interface {
	VerifyAccessToken(ctx context.Context, tokenString string) (storage.User, error)
}

const ctxUser ctxKey = 2

// requireAccessToken extracts a token (bearer-then-cookie order) and
// re-verifies it against the current user record, rejecting a token
// whose jwt_version has been superseded.
func requireAccessToken(auth accessTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerOrCookieToken(r)
			if token == "" {
				writeError(w, apierr.Unauthorizedf("missing access token"))
				return
			}
			user, err := auth.VerifyAccessToken(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFromContext(ctx context.Context) storage.User {
	u, _ := ctx.Value(ctxUser).(storage.User)
	return u
}
