package httpapi

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/shortlyhq/shortly/internal/authsvc"
	"github.com/shortlyhq/shortly/internal/ratelimit"
	"github.com/shortlyhq/shortly/internal/urlsvc"
)

// Config carries the pieces of the application configuration the router
// needs to wire middleware: the API key guarding POST /api/shorten and
// whether auth cookies are marked Secure.
type Config struct {
	APIKey        uuid.UUID
	SecureCookies bool
}

// NewRouter assembles the full HTTP surface described by the external
// interfaces section: public routes, the API-key-protected bulk-shorten
// route, and the authenticated /api/v1 group, wrapped in request-id,
// client-metadata, and (where applicable) rate-limit middleware.
func NewRouter(cfg Config, url *urlsvc.Service, auth *authsvc.Service, limiter *ratelimit.Limiter, accessLog io.Writer) http.Handler {
	r := mux.NewRouter().SkipClean(true)
	r.Use(requestIDMiddleware, clientMetadataMiddleware)

	h := &authHandlers{auth: auth, secure: cfg.SecureCookies}

	r.HandleFunc("/", healthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/health_check", healthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/{id}", redirectHandler(url)).Methods(http.MethodGet)
	r.HandleFunc("/api/redirect/{id}", redirectHandler(url)).Methods(http.MethodGet)

	rateLimited := rateLimitMiddleware(limiter)
	r.Handle("/api/public/shorten", rateLimited(shortenHandler(url))).Methods(http.MethodPost)

	keyed := apiKeyMiddleware(cfg.APIKey)
	r.Handle("/api/shorten", keyed(rateLimited(shortenHandler(url)))).Methods(http.MethodPost)

	publicAuth := r.PathPrefix("/api/v1/auth").Subrouter()
	publicAuth.HandleFunc("/sign_up", h.signUp).Methods(http.MethodPost)
	publicAuth.HandleFunc("/sign_in", h.signIn).Methods(http.MethodPost)
	publicAuth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	publicAuth.HandleFunc("/password_reset/request", h.requestPasswordReset).Methods(http.MethodPost)
	publicAuth.HandleFunc("/password_reset/confirm", h.confirmPasswordReset).Methods(http.MethodPost)

	protectedAuth := r.PathPrefix("/api/v1/auth").Subrouter()
	protectedAuth.Use(requireAccessToken(auth))
	protectedAuth.HandleFunc("/sign_out", h.signOut).Methods(http.MethodPost)
	protectedAuth.HandleFunc("/sign_out_all", h.signOutAll).Methods(http.MethodPost)
	protectedAuth.HandleFunc("/change_password", h.changePassword).Methods(http.MethodPost)
	protectedAuth.HandleFunc("/verify_email/request", h.requestEmailVerification).Methods(http.MethodPost)
	protectedAuth.HandleFunc("/verify_email/confirm", h.confirmEmailVerification).Methods(http.MethodPost)
	protectedAuth.HandleFunc("/change_email/request", h.requestChangeEmail).Methods(http.MethodPost)
	protectedAuth.HandleFunc("/change_email/confirm", h.confirmChangeEmail).Methods(http.MethodPost)

	user := r.PathPrefix("/api/v1/user").Subrouter()
	user.Use(requireAccessToken(auth))
	user.HandleFunc("/me", h.me).Methods(http.MethodGet)

	var root http.Handler = r
	root = handlers.CombinedLoggingHandler(accessLog, root)
	root = handlers.RecoveryHandler()(root)
	return root
}
