package authsvc

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/security"
	"github.com/shortlyhq/shortly/internal/storage"
)

func validEmailSyntax(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// issueBundle computes an access token from (user_id, jwt_version) and
// upserts the refresh-device row per §4.7's "issue bundle" semantics.
func (s *Service) issueBundle(ctx context.Context, user storage.User, deviceID, userAgent, ip string) (Bundle, error) {
	access, err := security.NewAccessToken(s.cfg.JWTSecret, user.ID, user.JWTVersion, s.cfg.AccessTokenTTL)
	if err != nil {
		return Bundle{}, apierr.Internalf("token issue failed")
	}

	plaintext, err := security.NewRefreshTokenPlaintext()
	if err != nil {
		return Bundle{}, apierr.Internalf("token issue failed")
	}
	hash := security.HMACRefreshToken(plaintext, s.cfg.Pepper)
	now := time.Now()

	_, err = s.auth.UpsertRefreshDevice(ctx, storage.RefreshDevice{
		UserID:         user.ID,
		DeviceLabel:    defaultDevice(deviceID),
		CurrentHash:    hash,
		AbsoluteExpiry: now.Add(s.cfg.RefreshTokenTTL),
		LastRotatedAt:  now,
		UserAgent:      userAgent,
		IP:             ip,
	})
	if err != nil {
		return Bundle{}, apierr.Internalf("token issue failed")
	}

	return Bundle{AccessToken: access, RefreshToken: plaintext}, nil
}

// Refresh implements the rotation outcomes of §4.7 exactly: a match on
// current_hash rotates normally, a match on previous_hash within the
// grace window rotates once more (covering one racing client), and every
// other outcome revokes or rejects. The lookup matches current_hash or
// previous_hash within the given device_id, so a token presented against
// the wrong device is rejected the same as an unknown one.
func (s *Service) Refresh(ctx context.Context, refreshPlaintext, deviceID string) (Bundle, error) {
	hash := security.HMACRefreshToken(refreshPlaintext, s.cfg.Pepper)

	device, err := s.auth.GetRefreshDeviceByHash(ctx, defaultDevice(deviceID), hash)
	if errors.Is(err, storage.ErrNotFound) {
		return Bundle{}, apierr.Unauthorizedf("invalid refresh token")
	}
	if err != nil {
		return Bundle{}, apierr.Internalf("refresh failed")
	}

	now := time.Now()
	if device.RevokedAt != nil {
		return Bundle{}, apierr.Unauthorizedf("device revoked")
	}
	if now.After(device.AbsoluteExpiry) {
		return Bundle{}, apierr.Unauthorizedf("refresh expired")
	}

	matchesCurrent := security.EqualHMAC(hash, device.CurrentHash)
	matchesPrevious := device.PreviousHash != nil && security.EqualHMAC(hash, *device.PreviousHash)

	if !matchesCurrent {
		if !matchesPrevious || now.Sub(device.LastRotatedAt) > s.cfg.RefreshGraceWindow {
			_ = s.auth.RevokeRefreshDevice(ctx, device.ID, now)
			return Bundle{}, apierr.Unauthorizedf("stale refresh token")
		}
		// grace window: the client likely raced a prior rotation; accept once.
	}

	user, err := s.users.GetUserByID(ctx, device.UserID)
	if err != nil {
		return Bundle{}, apierr.Internalf("refresh failed")
	}

	access, err := security.NewAccessToken(s.cfg.JWTSecret, user.ID, user.JWTVersion, s.cfg.AccessTokenTTL)
	if err != nil {
		return Bundle{}, apierr.Internalf("refresh failed")
	}
	newPlaintext, err := security.NewRefreshTokenPlaintext()
	if err != nil {
		return Bundle{}, apierr.Internalf("refresh failed")
	}
	newHash := security.HMACRefreshToken(newPlaintext, s.cfg.Pepper)

	if err := s.auth.RotateRefreshDevice(ctx, device.ID, newHash, now); err != nil {
		return Bundle{}, apierr.Internalf("refresh failed")
	}

	return Bundle{AccessToken: access, RefreshToken: newPlaintext}, nil
}

// SignOut revokes a single device.
func (s *Service) SignOut(ctx context.Context, userID, deviceID string) error {
	device, err := s.auth.GetRefreshDeviceByUserDevice(ctx, userID, defaultDevice(deviceID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apierr.Internalf("sign-out failed")
	}
	if err := s.auth.RevokeRefreshDevice(ctx, device.ID, time.Now()); err != nil {
		return apierr.Internalf("sign-out failed")
	}
	return nil
}

// SignOutAll revokes every device and bumps jwt_version, invalidating
// outstanding access tokens immediately.
func (s *Service) SignOutAll(ctx context.Context, userID string) error {
	now := time.Now()
	if err := s.auth.RevokeAllRefreshDevices(ctx, userID, now); err != nil {
		return apierr.Internalf("sign-out failed")
	}
	if _, err := s.users.IncrementJWTVersion(ctx, userID); err != nil {
		return apierr.Internalf("sign-out failed")
	}
	return nil
}

// VerifyAccessToken parses the token and re-reads the user, rejecting a
// token whose jwt_version has been superseded by a sign-out-all or
// credential change.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenString string) (storage.User, error) {
	claims, err := security.ParseAccessToken(s.cfg.JWTSecret, tokenString)
	if err != nil {
		return storage.User{}, apierr.Unauthorizedf("invalid token")
	}
	user, err := s.users.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, apierr.Unauthorizedf("token revoked")
	}
	if err != nil {
		return storage.User{}, apierr.Internalf("verification failed")
	}
	if claims.Ver != user.JWTVersion {
		return storage.User{}, apierr.Unauthorizedf("token revoked")
	}
	return user, nil
}
