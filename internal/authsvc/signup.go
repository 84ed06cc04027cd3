package authsvc

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/security"
	"github.com/shortlyhq/shortly/internal/storage"
)

const maxDisplayNameCodePoints = 30

// SignUpInput is the validated sign-up request body.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
	DeviceID    string
	UserAgent   string
	IP          string
}

// SignUp implements §4.7's sign-up sequence: validate, hash, create the
// user and an unconfirmed verify-email challenge, send the code and issue
// the token bundle concurrently, then return the bundle.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Bundle, error) {
	if !validEmailSyntax(in.Email) {
		return Bundle{}, apierr.Unprocessablef("Invalid email address")
	}
	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return Bundle{}, apierr.EmailTakenErr()
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Bundle{}, apierr.Internalf("sign-up failed")
	}

	if utf8.RuneCountInString(in.DisplayName) > maxDisplayNameCodePoints {
		return Bundle{}, apierr.Unprocessablef("Display name exceeds %d characters", maxDisplayNameCodePoints)
	}

	normalized, err := security.NormalizePassword(in.Password)
	if err != nil {
		return Bundle{}, apierr.Unprocessablef("Password does not meet requirements")
	}

	passwordHash, err := security.HashPassword(normalized, s.cfg.Pepper)
	if err != nil {
		return Bundle{}, apierr.Internalf("sign-up failed")
	}

	user, err := s.users.CreateUser(ctx, storage.User{
		Email:        in.Email,
		PasswordHash: passwordHash,
		DisplayName:  in.DisplayName,
		CreatedAt:    time.Now(),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return Bundle{}, apierr.EmailTakenErr()
	}
	if err != nil {
		return Bundle{}, apierr.Internalf("sign-up failed")
	}

	code, err := security.NewChallengeCode()
	if err != nil {
		return Bundle{}, apierr.Internalf("sign-up failed")
	}
	codeHash, err := security.HashPassword(code, s.cfg.Pepper)
	if err != nil {
		return Bundle{}, apierr.Internalf("sign-up failed")
	}
	now := time.Now()
	if _, err := s.auth.UpsertChallenge(ctx, storage.Challenge{
		UserID:    user.ID,
		Action:    storage.ChallengeVerifyEmail,
		CodeHash:  codeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		return Bundle{}, apierr.Internalf("sign-up failed")
	}

	var bundle Bundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.mailer.Send(gctx, user.Email, "Verify your email",
			fmt.Sprintf("Your verification code is %s", code))
	})
	g.Go(func() error {
		b, err := s.issueBundle(gctx, user, in.DeviceID, in.UserAgent, in.IP)
		if err != nil {
			return err
		}
		bundle = b
		return nil
	})
	if err := g.Wait(); err != nil {
		if aerr, ok := err.(*apierr.Error); ok {
			return Bundle{}, aerr
		}
		s.log.Warnf("sign-up side effect failed: %v", err)
	}

	return bundle, nil
}
