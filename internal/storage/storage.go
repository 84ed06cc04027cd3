// Package storage defines the repository contracts consumed by the
// shorten/redirect engine and the authentication service. Concrete
// implementations (internal/storage/sqlstore) never leak their SQL
// dialect through this interface.
package storage

import (
	"context"
	"errors"
	"time"
)

// Repository-boundary error taxonomy. Only these variants cross into
// services; everything else is wrapped as ErrQuery by the implementation.
var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrConnection = errors.New("connection error")
	ErrQuery      = errors.New("query error")
	ErrMigration  = errors.New("migration error")
)

// URLRecord is the persisted {id -> long_url} row.
type URLRecord struct {
	ID        string
	Code      string
	URL       string
	URLHash   string
	CreatedAt time.Time
}

// UpsertResult reports whether insert_url created a new row.
type UpsertResult struct {
	ID      string
	Created bool
}

// URLRepository is the persistent mapping of short codes (and aliases)
// to long URLs, plus the named-blob store for Bloom snapshots.
type URLRepository interface {
	// InsertURL atomically inserts (code, url) unless a row already has
	// url's content hash, in which case it returns that row's id with
	// Created=false. Returns ErrDuplicate iff code itself collides with
	// an existing, distinct row.
	InsertURL(ctx context.Context, code, url string) (UpsertResult, URLRecord, error)

	// GetURL resolves a code or alias to its URL.
	GetURL(ctx context.Context, code string) (URLRecord, error)

	// GetByURL performs the content-hash lookup used by the filter-probe
	// dedup path.
	GetByURL(ctx context.Context, url string) (URLRecord, error)

	// ListShortCodes pages through every stored code for filter rebuild.
	ListShortCodes(ctx context.Context, offset, limit int) ([]string, error)

	// InsertAlias adds a second identifier pointing at an existing
	// record. Returns ErrDuplicate if alias is already taken, ErrNotFound
	// if targetID does not exist.
	InsertAlias(ctx context.Context, alias, targetID string) error

	LoadBloomSnapshot(ctx context.Context, name string) ([]byte, error)
	SaveBloomSnapshot(ctx context.Context, name string, data []byte) error

	Close() error
}

// User is the persisted account row.
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	DisplayName    string
	IsEmailVerified bool
	CreatedAt      time.Time
	LastLoginAt    *time.Time
	JWTVersion     int64
}

// RefreshDevice is a (user, device) pair holding the rotating refresh
// token HMAC.
type RefreshDevice struct {
	ID             string
	UserID         string
	DeviceLabel    string
	CurrentHash    string
	PreviousHash   *string
	AbsoluteExpiry time.Time
	RevokedAt      *time.Time
	LastRotatedAt  time.Time
	UserAgent      string
	IP             string
}

// ChallengeAction enumerates the three challenge flows sharing one
// machine.
type ChallengeAction string

const (
	ChallengeVerifyEmail   ChallengeAction = "verify_email"
	ChallengeResetPassword ChallengeAction = "reset_password"
	ChallengeChangeEmail   ChallengeAction = "change_email"
)

// Challenge is an unconfirmed (user, action) row holding a hashed
// one-time code, an expiry, and an attempt counter.
type Challenge struct {
	ID          string
	UserID      string
	Action      ChallengeAction
	Target      string
	CodeHash    string
	Attempts    int
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
}

// SignInAttempt is an append-only audit row.
type SignInAttempt struct {
	ID        string
	UserID    *string
	IP        string
	Target    string
	Success   bool
	UserAgent string
	CreatedAt time.Time
}

// UserRepository owns the users table.
type UserRepository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateEmail(ctx context.Context, userID, email string) error
	SetEmailVerified(ctx context.Context, userID string, verified bool) error
	IncrementJWTVersion(ctx context.Context, userID string) (int64, error)
	TouchLastLogin(ctx context.Context, userID string) error

	Close() error
}

// AuthRepository owns refresh devices, challenges, and sign-in attempts.
type AuthRepository interface {
	UpsertRefreshDevice(ctx context.Context, d RefreshDevice) (RefreshDevice, error)
	GetRefreshDeviceByUserDevice(ctx context.Context, userID, deviceLabel string) (RefreshDevice, error)
	GetRefreshDeviceByHash(ctx context.Context, deviceLabel, hash string) (RefreshDevice, error)
	RotateRefreshDevice(ctx context.Context, id string, newCurrentHash string, rotatedAt time.Time) error
	RevokeRefreshDevice(ctx context.Context, id string, revokedAt time.Time) error
	RevokeAllRefreshDevices(ctx context.Context, userID string, revokedAt time.Time) error

	UpsertChallenge(ctx context.Context, c Challenge) (Challenge, error)
	GetUnconfirmedChallenge(ctx context.Context, userID string, action ChallengeAction) (Challenge, error)
	IncrementChallengeAttempts(ctx context.Context, id string) (int, error)
	ConfirmChallenge(ctx context.Context, id string, confirmedAt time.Time) error

	RecordSignInAttempt(ctx context.Context, a SignInAttempt) error
	CountFailedSignInsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountFailedSignInsByUser(ctx context.Context, userID string, since time.Time) (int, error)

	Close() error
}
