package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/storage"
)

var _ storage.AuthRepository = (*Store)(nil)

func scanDevice(row scanner) (storage.RefreshDevice, error) {
	var d storage.RefreshDevice
	var prev sql.NullString
	var revoked sql.NullTime
	err := row.Scan(&d.ID, &d.UserID, &d.DeviceLabel, &d.CurrentHash, &prev,
		&d.AbsoluteExpiry, &revoked, &d.LastRotatedAt, &d.UserAgent, &d.IP)
	if err != nil {
		return storage.RefreshDevice{}, err
	}
	if prev.Valid {
		d.PreviousHash = &prev.String
	}
	if revoked.Valid {
		t := revoked.Time
		d.RevokedAt = &t
	}
	return d, nil
}

const deviceColumns = `id, user_id, device_id, current_hash, previous_hash, absolute_expires, revoked_at, last_rotated_at, user_agent, ip`

// UpsertRefreshDevice implements the issue-bundle upsert: a fresh row on
// first use of (user, device), otherwise current_hash/previous_hash/
// last_rotated_at/absolute_expires are overwritten and revoked_at cleared.
func (s *Store) UpsertRefreshDevice(ctx context.Context, d storage.RefreshDevice) (storage.RefreshDevice, error) {
	var out storage.RefreshDevice
	err := s.ExecTx(func(tx *trans) error {
		row := tx.QueryRow(`select `+deviceColumns+` from refresh_token_devices where user_id = $1 and device_id = $2;`,
			d.UserID, d.DeviceLabel)
		existing, err := scanDevice(row)
		if err == sql.ErrNoRows {
			id := uuid.New().String()
			_, err := tx.Exec(`
				insert into refresh_token_devices
					(id, user_id, device_id, current_hash, previous_hash, absolute_expires, revoked_at, last_rotated_at, user_agent, ip)
				values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
			`, id, d.UserID, d.DeviceLabel, d.CurrentHash, nil, d.AbsoluteExpiry, nil, d.LastRotatedAt, d.UserAgent, d.IP)
			if err != nil {
				return fmt.Errorf("%w: insert refresh device: %v", storage.ErrQuery, err)
			}
			out = d
			out.ID = id
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}

		_, err = tx.Exec(`
			update refresh_token_devices
			set previous_hash = current_hash, current_hash = $1, absolute_expires = $2,
				revoked_at = null, last_rotated_at = $3, user_agent = $4, ip = $5
			where id = $6;
		`, d.CurrentHash, d.AbsoluteExpiry, d.LastRotatedAt, d.UserAgent, d.IP, existing.ID)
		if err != nil {
			return fmt.Errorf("%w: update refresh device: %v", storage.ErrQuery, err)
		}
		out = storage.RefreshDevice{
			ID: existing.ID, UserID: d.UserID, DeviceLabel: d.DeviceLabel,
			CurrentHash: d.CurrentHash, PreviousHash: &existing.CurrentHash,
			AbsoluteExpiry: d.AbsoluteExpiry, LastRotatedAt: d.LastRotatedAt,
			UserAgent: d.UserAgent, IP: d.IP,
		}
		return nil
	})
	if err != nil {
		return storage.RefreshDevice{}, err
	}
	return out, nil
}

func (s *Store) GetRefreshDeviceByUserDevice(ctx context.Context, userID, deviceLabel string) (storage.RefreshDevice, error) {
	row := s.QueryRow(`select `+deviceColumns+` from refresh_token_devices where user_id = $1 and device_id = $2;`,
		userID, deviceLabel)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return storage.RefreshDevice{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RefreshDevice{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return d, nil
}

// GetRefreshDeviceByHash matches either the current or previous HMAC,
// scoped to the caller-supplied device, so the grace-window rotation
// check can tell which one matched without leaking across devices.
func (s *Store) GetRefreshDeviceByHash(ctx context.Context, deviceLabel, hash string) (storage.RefreshDevice, error) {
	row := s.QueryRow(`
		select `+deviceColumns+` from refresh_token_devices
		where (current_hash = $1 or previous_hash = $1) and device_id = $2;
	`, hash, deviceLabel)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return storage.RefreshDevice{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RefreshDevice{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return d, nil
}

func (s *Store) RotateRefreshDevice(ctx context.Context, id string, newCurrentHash string, rotatedAt time.Time) error {
	return s.mustAffectOne(`
		update refresh_token_devices
		set previous_hash = current_hash, current_hash = $1, last_rotated_at = $2
		where id = $3;
	`, newCurrentHash, rotatedAt, id)
}

func (s *Store) RevokeRefreshDevice(ctx context.Context, id string, revokedAt time.Time) error {
	return s.mustAffectOne(`update refresh_token_devices set revoked_at = $1 where id = $2;`, revokedAt, id)
}

func (s *Store) RevokeAllRefreshDevices(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.Exec(`update refresh_token_devices set revoked_at = $1 where user_id = $2 and revoked_at is null;`,
		revokedAt, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return nil
}

func scanChallenge(row scanner) (storage.Challenge, error) {
	var c storage.Challenge
	var confirmed sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Action, &c.Target, &c.CodeHash, &c.Attempts,
		&c.CreatedAt, &c.ExpiresAt, &confirmed)
	if err != nil {
		return storage.Challenge{}, err
	}
	if confirmed.Valid {
		t := confirmed.Time
		c.ConfirmedAt = &t
	}
	return c, nil
}

const challengeColumns = `id, user_id, action, target, code_hash, attempts, created_at, expires_at, confirmed_at`

// UpsertChallenge enforces "at most one unconfirmed challenge per
// (user, action)" by overwriting the existing unconfirmed row in place.
func (s *Store) UpsertChallenge(ctx context.Context, c storage.Challenge) (storage.Challenge, error) {
	var out storage.Challenge
	err := s.ExecTx(func(tx *trans) error {
		row := tx.QueryRow(`
			select `+challengeColumns+` from authentication_challenges
			where user_id = $1 and action = $2 and confirmed_at is null;
		`, c.UserID, c.Action)
		existing, err := scanChallenge(row)
		if err == sql.ErrNoRows {
			id := c.ID
			if id == "" {
				id = uuid.New().String()
			}
			_, err := tx.Exec(`
				insert into authentication_challenges
					(id, user_id, action, target, code_hash, attempts, created_at, expires_at, confirmed_at)
				values ($1, $2, $3, $4, $5, $6, $7, $8, $9);
			`, id, c.UserID, c.Action, c.Target, c.CodeHash, 0, c.CreatedAt, c.ExpiresAt, nil)
			if err != nil {
				return fmt.Errorf("%w: insert challenge: %v", storage.ErrQuery, err)
			}
			out = c
			out.ID = id
			out.Attempts = 0
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}

		_, err = tx.Exec(`
			update authentication_challenges
			set target = $1, code_hash = $2, attempts = 0, created_at = $3, expires_at = $4
			where id = $5;
		`, c.Target, c.CodeHash, c.CreatedAt, c.ExpiresAt, existing.ID)
		if err != nil {
			return fmt.Errorf("%w: update challenge: %v", storage.ErrQuery, err)
		}
		out = c
		out.ID = existing.ID
		out.Attempts = 0
		return nil
	})
	if err != nil {
		return storage.Challenge{}, err
	}
	return out, nil
}

func (s *Store) GetUnconfirmedChallenge(ctx context.Context, userID string, action storage.ChallengeAction) (storage.Challenge, error) {
	row := s.QueryRow(`
		select `+challengeColumns+` from authentication_challenges
		where user_id = $1 and action = $2 and confirmed_at is null;
	`, userID, action)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return storage.Challenge{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return c, nil
}

func (s *Store) IncrementChallengeAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.ExecTx(func(tx *trans) error {
		res, err := tx.Exec(`update authentication_challenges set attempts = attempts + 1 where id = $1;`, id)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
		return tx.QueryRow(`select attempts from authentication_challenges where id = $1;`, id).Scan(&attempts)
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *Store) ConfirmChallenge(ctx context.Context, id string, confirmedAt time.Time) error {
	return s.mustAffectOne(`update authentication_challenges set confirmed_at = $1 where id = $2;`, confirmedAt, id)
}

func (s *Store) RecordSignInAttempt(ctx context.Context, a storage.SignInAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.Exec(`
		insert into sign_in_attempts (id, user_id, ip, target, success, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7);
	`, a.ID, a.UserID, a.IP, a.Target, a.Success, a.UserAgent, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert sign-in attempt: %v", storage.ErrQuery, err)
	}
	return nil
}

func (s *Store) CountFailedSignInsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := s.QueryRow(`
		select count(*) from sign_in_attempts where ip = $1 and success = false and created_at >= $2;
	`, ip, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return n, nil
}

func (s *Store) CountFailedSignInsByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.QueryRow(`
		select count(*) from sign_in_attempts where user_id = $1 and success = false and created_at >= $2;
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return n, nil
}
