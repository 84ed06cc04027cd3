package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/authsvc"
)

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"device_id,omitempty"`
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type verifyEmailConfirmRequest struct {
	Code string `json:"code" validate:"required"`
}

type passwordResetRequestBody struct {
	Email string `json:"email" validate:"required,email"`
}

type passwordResetConfirmRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type changeEmailRequestBody struct {
	NewEmail        string `json:"new_email" validate:"required,email"`
	CurrentPassword string `json:"current_password" validate:"required"`
}

type changeEmailConfirmRequest struct {
	Code string `json:"code" validate:"required"`
}

type authHandlers struct {
	auth   *authsvc.Service
	secure bool
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.BadRequestf("malformed request body")
	}
	return nil
}

func (h *authHandlers) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	meta := clientMetaFromContext(r.Context())
	bundle, err := h.auth.SignUp(r.Context(), authsvc.SignUpInput{
		Email: req.Email, Password: req.Password, DisplayName: req.DisplayName,
		DeviceID: req.DeviceID, UserAgent: meta.UserAgent, IP: meta.IP,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	setAuthCookies(w, bundle.AccessToken, bundle.RefreshToken, h.secure)
	writeOK(w, nil)
}

func (h *authHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	meta := clientMetaFromContext(r.Context())
	bundle, err := h.auth.SignIn(r.Context(), authsvc.SignInInput{
		Email: req.Email, Password: req.Password, DeviceID: req.DeviceID,
		UserAgent: meta.UserAgent, IP: meta.IP,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	setAuthCookies(w, bundle.AccessToken, bundle.RefreshToken, h.secure)
	writeOK(w, nil)
}

func (h *authHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	refreshCookie, err := r.Cookie("refresh_token")
	if err != nil {
		writeError(w, apierr.Unauthorizedf("missing refresh token"))
		return
	}
	bundle, err := h.auth.Refresh(r.Context(), refreshCookie.Value, req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	setAuthCookies(w, bundle.AccessToken, bundle.RefreshToken, h.secure)
	writeOK(w, nil)
}

func (h *authHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user := userFromContext(r.Context())
	if err := h.auth.SignOut(r.Context(), user.ID, req.DeviceID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) signOutAll(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if err := h.auth.SignOutAll(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	user := userFromContext(r.Context())
	if err := h.auth.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) requestEmailVerification(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if err := h.auth.RequestEmailVerification(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) confirmEmailVerification(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user := userFromContext(r.Context())
	if err := h.auth.ConfirmEmailVerification(r.Context(), user.ID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.auth.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) requestChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, err)
		return
	}
	user := userFromContext(r.Context())
	if err := h.auth.RequestChangeEmail(r.Context(), user.ID, req.NewEmail, req.CurrentPassword); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *authHandlers) confirmChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user := userFromContext(r.Context())
	if err := h.auth.ConfirmChangeEmail(r.Context(), user.ID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

// userView is the public projection of storage.User; PasswordHash never
// leaves the process.
type userView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	IsEmailVerified bool       `json:"is_email_verified"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

func (h *authHandlers) me(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeOK(w, userView{
		ID:              user.ID,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		IsEmailVerified: user.IsEmailVerified,
		CreatedAt:       user.CreatedAt,
		LastLoginAt:     user.LastLoginAt,
	})
}
