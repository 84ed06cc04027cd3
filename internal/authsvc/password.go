package authsvc

import (
	"context"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/security"
)

// ChangePassword verifies the old password, normalizes and hashes the
// new one, writes it, then revokes every session (§4.7).
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return apierr.Internalf("change password failed")
	}

	ok, err := security.VerifyPassword(user.PasswordHash, oldPassword, s.cfg.Pepper)
	if err != nil || !ok {
		return apierr.Unauthorizedf("incorrect password")
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	return s.SignOutAll(ctx, userID)
}

// setPassword runs the shared normalize+hash+write path used by change
// password and password-reset confirmation.
func (s *Service) setPassword(ctx context.Context, userID, newPassword string) error {
	normalized, err := security.NormalizePassword(newPassword)
	if err != nil {
		return apierr.Unprocessablef("Password does not meet requirements")
	}
	hash, err := security.HashPassword(normalized, s.cfg.Pepper)
	if err != nil {
		return apierr.Internalf("change password failed")
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return apierr.Internalf("change password failed")
	}
	return nil
}
