package authsvc

import (
	"context"
	"errors"
	"time"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/security"
	"github.com/shortlyhq/shortly/internal/storage"
)

// SignInInput is the validated sign-in request body.
type SignInInput struct {
	Email     string
	Password  string
	DeviceID  string
	UserAgent string
	IP        string
}

// SignIn implements §4.7's sign-in sequence including the dual IP/user
// lockout hooks decided in SPEC_FULL.md §D.3.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (Bundle, error) {
	if !validEmailSyntax(in.Email) {
		return Bundle{}, apierr.Unauthorizedf("invalid credentials")
	}

	if locked, err := s.isIPBlocked(ctx, in.IP); err != nil {
		return Bundle{}, apierr.Internalf("sign-in failed")
	} else if locked {
		s.recordAttempt(ctx, nil, in)
		return Bundle{}, apierr.Unauthorizedf("invalid credentials")
	}

	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, storage.ErrNotFound) {
		s.recordAttempt(ctx, nil, in)
		return Bundle{}, apierr.Unauthorizedf("invalid credentials")
	}
	if err != nil {
		return Bundle{}, apierr.Internalf("sign-in failed")
	}

	if locked, err := s.shouldLockUser(ctx, user.ID); err != nil {
		return Bundle{}, apierr.Internalf("sign-in failed")
	} else if locked {
		s.recordAttempt(ctx, &user.ID, in)
		return Bundle{}, apierr.Unauthorizedf("invalid credentials")
	}

	ok, err := security.VerifyPassword(user.PasswordHash, in.Password, s.cfg.Pepper)
	if err != nil || !ok {
		s.recordAttempt(ctx, &user.ID, in)
		return Bundle{}, apierr.Unauthorizedf("invalid credentials")
	}

	s.recordAttemptSuccess(ctx, user.ID, in)
	_ = s.users.TouchLastLogin(ctx, user.ID)

	return s.issueBundle(ctx, user, in.DeviceID, in.UserAgent, in.IP)
}

func (s *Service) isIPBlocked(ctx context.Context, ip string) (bool, error) {
	if s.cfg.MaxFailedPerIP <= 0 {
		return false, nil
	}
	n, err := s.auth.CountFailedSignInsByIP(ctx, ip, time.Now().Add(-s.cfg.LockoutWindow))
	if err != nil {
		return false, err
	}
	return n >= s.cfg.MaxFailedPerIP, nil
}

func (s *Service) shouldLockUser(ctx context.Context, userID string) (bool, error) {
	if s.cfg.MaxFailedPerUser <= 0 {
		return false, nil
	}
	n, err := s.auth.CountFailedSignInsByUser(ctx, userID, time.Now().Add(-s.cfg.LockoutWindow))
	if err != nil {
		return false, err
	}
	return n >= s.cfg.MaxFailedPerUser, nil
}

func (s *Service) recordAttempt(ctx context.Context, userID *string, in SignInInput) {
	if err := s.auth.RecordSignInAttempt(ctx, storage.SignInAttempt{
		UserID: userID, IP: in.IP, Target: in.Email, Success: false, UserAgent: in.UserAgent, CreatedAt: time.Now(),
	}); err != nil {
		s.log.Warnf("recording failed sign-in attempt: %v", err)
	}
}

func (s *Service) recordAttemptSuccess(ctx context.Context, userID string, in SignInInput) {
	if err := s.auth.RecordSignInAttempt(ctx, storage.SignInAttempt{
		UserID: &userID, IP: in.IP, Target: in.Email, Success: true, UserAgent: in.UserAgent, CreatedAt: time.Now(),
	}); err != nil {
		s.log.Warnf("recording sign-in attempt: %v", err)
	}
}
