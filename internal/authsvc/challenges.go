package authsvc

import (
	"context"
	"errors"
	"time"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/security"
	"github.com/shortlyhq/shortly/internal/storage"
)

// createOrRefreshChallenge enforces the cooldown between successive sends:
// a freshly created unconfirmed challenge within the cooldown window is
// rejected as Cooldown rather than silently resent.
func (s *Service) createOrRefreshChallenge(ctx context.Context, userID string, action storage.ChallengeAction, target string) (string, error) {
	if existing, err := s.auth.GetUnconfirmedChallenge(ctx, userID, action); err == nil {
		if time.Since(existing.CreatedAt) < s.cfg.ChallengeCooldown {
			return "", apierr.Cooldownf("A code was already sent recently, try again shortly")
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", apierr.Internalf("request failed")
	}

	code, err := security.NewChallengeCode()
	if err != nil {
		return "", apierr.Internalf("request failed")
	}
	codeHash, err := security.HashPassword(code, s.cfg.Pepper)
	if err != nil {
		return "", apierr.Internalf("request failed")
	}

	now := time.Now()
	_, err = s.auth.UpsertChallenge(ctx, storage.Challenge{
		UserID:    userID,
		Action:    action,
		Target:    target,
		CodeHash:  codeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	})
	if err != nil {
		return "", apierr.Internalf("request failed")
	}
	return code, nil
}

// verifyChallenge implements the shared verify-code step: attempt-bound,
// expiry-bound, Argon2id-compared.
func (s *Service) verifyChallenge(ctx context.Context, userID string, action storage.ChallengeAction, code string) (storage.Challenge, error) {
	challenge, err := s.auth.GetUnconfirmedChallenge(ctx, userID, action)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Challenge{}, apierr.InvalidOrExpiredf("code is invalid or expired")
	}
	if err != nil {
		return storage.Challenge{}, apierr.Internalf("verification failed")
	}

	if challenge.Attempts >= s.cfg.ChallengeMaxAttempts {
		return storage.Challenge{}, apierr.InvalidOrExpiredf("code is invalid or expired")
	}
	if time.Now().After(challenge.ExpiresAt) {
		return storage.Challenge{}, apierr.InvalidOrExpiredf("code is invalid or expired")
	}

	ok, err := security.VerifyPassword(challenge.CodeHash, code, s.cfg.Pepper)
	if err != nil {
		return storage.Challenge{}, apierr.Internalf("verification failed")
	}
	if !ok {
		if _, err := s.auth.IncrementChallengeAttempts(ctx, challenge.ID); err != nil {
			s.log.Warnf("incrementing challenge attempts: %v", err)
		}
		return storage.Challenge{}, apierr.InvalidOrExpiredf("code is invalid or expired")
	}

	if err := s.auth.ConfirmChallenge(ctx, challenge.ID, time.Now()); err != nil {
		return storage.Challenge{}, apierr.Internalf("verification failed")
	}
	return challenge, nil
}

// RequestEmailVerification sends (or resends, subject to cooldown) a
// verify-email code to the caller's own address.
func (s *Service) RequestEmailVerification(ctx context.Context, userID string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return apierr.Internalf("request failed")
	}
	if user.IsEmailVerified {
		return apierr.AlreadyActivef("email is already verified")
	}
	code, err := s.createOrRefreshChallenge(ctx, userID, storage.ChallengeVerifyEmail, user.Email)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, user.Email, "Verify your email", "Your verification code is "+code); err != nil {
		s.log.Warnf("sending verification email: %v", err)
	}
	return nil
}

// ConfirmEmailVerification marks the account verified on a matching code.
func (s *Service) ConfirmEmailVerification(ctx context.Context, userID, code string) error {
	if _, err := s.verifyChallenge(ctx, userID, storage.ChallengeVerifyEmail, code); err != nil {
		return err
	}
	if err := s.users.SetEmailVerified(ctx, userID, true); err != nil {
		return apierr.Internalf("verification failed")
	}
	return nil
}

// RequestPasswordReset sends a reset code if the email exists; a miss is
// reported as success to the caller to avoid confirming account
// existence, but no code is actually sent.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apierr.Internalf("request failed")
	}
	code, err := s.createOrRefreshChallenge(ctx, user.ID, storage.ChallengeResetPassword, user.Email)
	if err != nil {
		if aerr, ok := err.(*apierr.Error); ok && aerr.Kind == apierr.Cooldown {
			return nil
		}
		return err
	}
	if err := s.mailer.Send(ctx, user.Email, "Reset your password", "Your reset code is "+code); err != nil {
		s.log.Warnf("sending reset email: %v", err)
	}
	return nil
}

// ConfirmPasswordReset verifies the code then runs the change-password
// write path without an old-password check, per §4.7.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return apierr.InvalidOrExpiredf("code is invalid or expired")
	}
	if _, err := s.verifyChallenge(ctx, user.ID, storage.ChallengeResetPassword, code); err != nil {
		return err
	}
	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	return s.SignOutAll(ctx, user.ID)
}

// RequestChangeEmail verifies the current password before sending a code
// to the new address.
func (s *Service) RequestChangeEmail(ctx context.Context, userID, newEmail, currentPassword string) error {
	if !validEmailSyntax(newEmail) {
		return apierr.Unprocessablef("Invalid email address")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return apierr.Internalf("request failed")
	}
	ok, err := security.VerifyPassword(user.PasswordHash, currentPassword, s.cfg.Pepper)
	if err != nil || !ok {
		return apierr.Unauthorizedf("incorrect password")
	}
	if _, err := s.users.GetUserByEmail(ctx, newEmail); err == nil {
		return apierr.EmailTakenErr()
	} else if !errors.Is(err, storage.ErrNotFound) {
		return apierr.Internalf("request failed")
	}

	code, err := s.createOrRefreshChallenge(ctx, userID, storage.ChallengeChangeEmail, newEmail)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, newEmail, "Confirm your new email", "Your confirmation code is "+code); err != nil {
		s.log.Warnf("sending change-email email: %v", err)
	}
	return nil
}

// ConfirmChangeEmail applies the challenge's target email and bumps
// jwt_version per the open-question decision in SPEC_FULL.md §D.2.
func (s *Service) ConfirmChangeEmail(ctx context.Context, userID, code string) error {
	challenge, err := s.verifyChallenge(ctx, userID, storage.ChallengeChangeEmail, code)
	if err != nil {
		return err
	}
	if err := s.users.UpdateEmail(ctx, userID, challenge.Target); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return apierr.EmailTakenErr()
		}
		return apierr.Internalf("change email failed")
	}
	if _, err := s.users.IncrementJWTVersion(ctx, userID); err != nil {
		return apierr.Internalf("change email failed")
	}
	return nil
}
