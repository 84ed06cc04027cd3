package authsvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shortlyhq/shortly/internal/apierr"
)

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "r@example.com", Password: "Password123"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, bundle.RefreshToken, "")
	require.NoError(t, err)
	require.NotEqual(t, bundle.RefreshToken, rotated.RefreshToken)
	require.NotEmpty(t, rotated.AccessToken)
}

func TestRefreshAcceptsPreviousHashWithinGraceWindow(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "g@example.com", Password: "Password123"})
	require.NoError(t, err)

	first, err := svc.Refresh(ctx, bundle.RefreshToken, "")
	require.NoError(t, err)

	// the original (now previous) token still rotates once, inside the grace window.
	_, err = svc.Refresh(ctx, bundle.RefreshToken, "")
	require.NoError(t, err)

	_ = first
}

func TestRefreshRejectsStaleToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "s@example.com", Password: "Password123"})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, bundle.RefreshToken, "")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, bundle.RefreshToken, "")
	require.NoError(t, err, "still within grace window")

	_, err = svc.Refresh(ctx, bundle.RefreshToken, "")
	require.Error(t, err, "the original token is stale by the third use")
	require.Equal(t, apierr.Unauthorized, err.(*apierr.Error).Kind)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Refresh(context.Background(), "not-a-real-token", "")
	require.Error(t, err)
	require.Equal(t, apierr.Unauthorized, err.(*apierr.Error).Kind)
}

func TestRefreshSucceedsWithMatchingDeviceID(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "dev@example.com", Password: "Password123", DeviceID: "laptop"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, bundle.RefreshToken, "laptop")
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)
}

func TestRefreshRejectsMismatchedDeviceID(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "dev2@example.com", Password: "Password123", DeviceID: "laptop"})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, bundle.RefreshToken, "phone")
	require.Error(t, err, "a valid token presented against the wrong device must be rejected")
	require.Equal(t, apierr.Unauthorized, err.(*apierr.Error).Kind)
}

func TestSignOutRevokesOneDevice(t *testing.T) {
	svc, _, auth, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "o@example.com", Password: "Password123"})
	require.NoError(t, err)

	user, err := svc.users.GetUserByEmail(ctx, "o@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, user.ID, ""))

	_, err = svc.Refresh(ctx, bundle.RefreshToken, "")
	require.Error(t, err)

	dev, err := auth.GetRefreshDeviceByUserDevice(ctx, user.ID, "default")
	require.NoError(t, err)
	require.NotNil(t, dev.RevokedAt)
}

func TestSignOutAllBumpsJWTVersionAndRevokesEverything(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "all@example.com", Password: "Password123"})
	require.NoError(t, err)

	user, err := users.GetUserByEmail(ctx, "all@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.SignOutAll(ctx, user.ID))

	reloaded, err := users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), reloaded.JWTVersion)

	_, err = svc.VerifyAccessToken(ctx, bundle.AccessToken)
	require.Error(t, err, "access token carries the stale jwt_version")
}

func TestVerifyAccessTokenRoundTrip(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bundle, err := svc.SignUp(ctx, SignUpInput{Email: "v@example.com", Password: "Password123"})
	require.NoError(t, err)

	user, err := svc.VerifyAccessToken(ctx, bundle.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "v@example.com", user.Email)
}

func TestVerifyAccessTokenRejectsGarbage(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.VerifyAccessToken(context.Background(), "garbage")
	require.Error(t, err)
}
