// Package authsvc implements the authentication core: credential
// hashing, access/refresh token issuance and rotation, and the
// challenge-based verify-email / reset-password / change-email flows.
package authsvc

import (
	"context"
	"time"

	"github.com/shortlyhq/shortly/internal/log"
	"github.com/shortlyhq/shortly/internal/storage"
)

// Mailer is the outbound email collaborator; only its send contract is
// used here (the concrete transport is out of scope for this core).
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config carries the tunables named in the external interface surface:
// secrets, token lifetimes, challenge policy, and the lockout thresholds
// fixed by the open-question decision in SPEC_FULL.md §D.3.
type Config struct {
	JWTSecret            string
	Pepper               string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RefreshGraceWindow   time.Duration
	ChallengeCooldown    time.Duration
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int
	MaxFailedPerIP       int
	MaxFailedPerUser     int
	LockoutWindow        time.Duration
}

// Service implements the authentication core over the user and auth
// repositories.
type Service struct {
	users  storage.UserRepository
	auth   storage.AuthRepository
	mailer Mailer
	cfg    Config
	log    log.Logger
}

func New(users storage.UserRepository, auth storage.AuthRepository, mailer Mailer, cfg Config, logger log.Logger) *Service {
	return &Service{users: users, auth: auth, mailer: mailer, cfg: cfg, log: logger}
}

// Bundle is the access/refresh pair returned by every flow that
// authenticates or re-authenticates a caller.
type Bundle struct {
	AccessToken  string
	RefreshToken string
}

func defaultDevice(deviceID string) string {
	if deviceID == "" {
		return "default"
	}
	return deviceID
}
