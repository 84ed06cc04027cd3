package authsvc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shortlyhq/shortly/internal/log"
	"github.com/shortlyhq/shortly/internal/storage"
)

// fakeUsers is an in-memory storage.UserRepository.
type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]storage.User
	byEmail map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]storage.User{}, byEmail: map[string]string{}}
}

func (f *fakeUsers) CreateUser(ctx context.Context, u storage.User) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[u.Email]; ok {
		return storage.User{}, storage.ErrDuplicate
	}
	u.ID = uuid.New().String()
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u.ID
	return u, nil
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id string) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byEmail[email]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeUsers) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = passwordHash
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) UpdateEmail(ctx context.Context, userID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[email]; ok {
		return storage.ErrDuplicate
	}
	u, ok := f.byID[userID]
	if !ok {
		return storage.ErrNotFound
	}
	delete(f.byEmail, u.Email)
	u.Email = email
	f.byID[userID] = u
	f.byEmail[email] = userID
	return nil
}

func (f *fakeUsers) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.IsEmailVerified = verified
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) IncrementJWTVersion(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	u.JWTVersion++
	f.byID[userID] = u
	return u.JWTVersion, nil
}

func (f *fakeUsers) TouchLastLogin(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) Close() error { return nil }

// fakeAuth is an in-memory storage.AuthRepository.
type fakeAuth struct {
	mu         sync.Mutex
	devices    map[string]storage.RefreshDevice
	challenges map[string]storage.Challenge
	attempts   []storage.SignInAttempt
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{devices: map[string]storage.RefreshDevice{}, challenges: map[string]storage.Challenge{}}
}

func deviceKey(userID, deviceLabel string) string { return userID + "|" + deviceLabel }

func (f *fakeAuth) UpsertRefreshDevice(ctx context.Context, d storage.RefreshDevice) (storage.RefreshDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deviceKey(d.UserID, d.DeviceLabel)
	if existing, ok := f.devices[key]; ok {
		prev := existing.CurrentHash
		d.ID = existing.ID
		d.PreviousHash = &prev
		d.RevokedAt = nil
		f.devices[key] = d
		return d, nil
	}
	d.ID = uuid.New().String()
	f.devices[key] = d
	return d, nil
}

func (f *fakeAuth) GetRefreshDeviceByUserDevice(ctx context.Context, userID, deviceLabel string) (storage.RefreshDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceKey(userID, deviceLabel)]
	if !ok {
		return storage.RefreshDevice{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeAuth) GetRefreshDeviceByHash(ctx context.Context, deviceLabel, hash string) (storage.RefreshDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.DeviceLabel != deviceLabel {
			continue
		}
		if d.CurrentHash == hash || (d.PreviousHash != nil && *d.PreviousHash == hash) {
			return d, nil
		}
	}
	return storage.RefreshDevice{}, storage.ErrNotFound
}

func (f *fakeAuth) RotateRefreshDevice(ctx context.Context, id string, newCurrentHash string, rotatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, d := range f.devices {
		if d.ID == id {
			prev := d.CurrentHash
			d.PreviousHash = &prev
			d.CurrentHash = newCurrentHash
			d.LastRotatedAt = rotatedAt
			f.devices[key] = d
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeAuth) RevokeRefreshDevice(ctx context.Context, id string, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, d := range f.devices {
		if d.ID == id {
			d.RevokedAt = &revokedAt
			f.devices[key] = d
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeAuth) RevokeAllRefreshDevices(ctx context.Context, userID string, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, d := range f.devices {
		if d.UserID == userID {
			d.RevokedAt = &revokedAt
			f.devices[key] = d
		}
	}
	return nil
}

func (f *fakeAuth) UpsertChallenge(ctx context.Context, c storage.Challenge) (storage.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := c.UserID + "|" + string(c.Action)
	c.ID = uuid.New().String()
	c.Attempts = 0
	f.challenges[key] = c
	return c, nil
}

func (f *fakeAuth) GetUnconfirmedChallenge(ctx context.Context, userID string, action storage.ChallengeAction) (storage.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.challenges[userID+"|"+string(action)]
	if !ok || c.ConfirmedAt != nil {
		return storage.Challenge{}, storage.ErrNotFound
	}
	return c, nil
}

// backdateChallenge moves the unconfirmed challenge's creation time back by
// d, so a test can request a new code once the cooldown started by
// sign-up's own verify-email challenge has passed.
func (f *fakeAuth) backdateChallenge(userID string, action storage.ChallengeAction, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "|" + string(action)
	if c, ok := f.challenges[key]; ok {
		c.CreatedAt = c.CreatedAt.Add(-d)
		f.challenges[key] = c
	}
}

func (f *fakeAuth) IncrementChallengeAttempts(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, c := range f.challenges {
		if c.ID == id {
			c.Attempts++
			f.challenges[key] = c
			return c.Attempts, nil
		}
	}
	return 0, storage.ErrNotFound
}

func (f *fakeAuth) ConfirmChallenge(ctx context.Context, id string, confirmedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, c := range f.challenges {
		if c.ID == id {
			c.ConfirmedAt = &confirmedAt
			f.challenges[key] = c
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeAuth) RecordSignInAttempt(ctx context.Context, a storage.SignInAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAuth) CountFailedSignInsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.IP == ip && !a.Success && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAuth) CountFailedSignInsByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.UserID != nil && *a.UserID == userID && !a.Success && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeAuth) Close() error { return nil }

// fakeMailer records sent messages and exposes their verification codes
// for tests that need to confirm a challenge.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	to, subject, body string
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func newTestService() (*Service, *fakeUsers, *fakeAuth, *fakeMailer) {
	users := newFakeUsers()
	auth := newFakeAuth()
	mailer := &fakeMailer{}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := Config{
		JWTSecret:            "jwt-secret",
		Pepper:               "pepper",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		RefreshGraceWindow:   2 * time.Minute,
		ChallengeCooldown:    time.Minute,
		ChallengeTTL:         time.Hour,
		ChallengeMaxAttempts: 5,
		MaxFailedPerIP:       20,
		MaxFailedPerUser:     5,
		LockoutWindow:        15 * time.Minute,
	}

	svc := New(users, auth, mailer, cfg, log.NewLogrus(logger))
	return svc, users, auth, mailer
}
