package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/storage"
)

var _ storage.UserRepository = (*Store)(nil)

func scanUser(row scanner) (storage.User, error) {
	var u storage.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.IsEmailVerified,
		&u.CreatedAt, &lastLogin, &u.JWTVersion)
	if err != nil {
		return storage.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// scanner abstracts *sql.Row vs *sql.Rows for scanUser.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) CreateUser(ctx context.Context, u storage.User) (storage.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.Exec(`
		insert into users (id, email, password_hash, display_name, is_email_verified, created_at, last_login_at, jwt_version)
		values ($1, $2, $3, $4, $5, $6, $7, $8);
	`, u.ID, u.Email, u.PasswordHash, u.DisplayName, u.IsEmailVerified, u.CreatedAt, nil, u.JWTVersion)
	if err != nil {
		if s.flavor.alreadyExists(err) {
			return storage.User{}, storage.ErrDuplicate
		}
		return storage.User{}, fmt.Errorf("%w: insert user: %v", storage.ErrQuery, err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (storage.User, error) {
	row := s.QueryRow(`
		select id, email, password_hash, display_name, is_email_verified, created_at, last_login_at, jwt_version
		from users where id = $1;
	`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	row := s.QueryRow(`
		select id, email, password_hash, display_name, is_email_verified, created_at, last_login_at, jwt_version
		from users where email = $1;
	`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return u, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return s.mustAffectOne(`update users set password_hash = $1 where id = $2;`, passwordHash, userID)
}

func (s *Store) UpdateEmail(ctx context.Context, userID, email string) error {
	_, err := s.Exec(`update users set email = $1 where id = $2;`, email, userID)
	if err != nil {
		if s.flavor.alreadyExists(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("%w: update email: %v", storage.ErrQuery, err)
	}
	return nil
}

func (s *Store) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	return s.mustAffectOne(`update users set is_email_verified = $1 where id = $2;`, verified, userID)
}

func (s *Store) IncrementJWTVersion(ctx context.Context, userID string) (int64, error) {
	var ver int64
	err := s.ExecTx(func(tx *trans) error {
		res, err := tx.Exec(`update users set jwt_version = jwt_version + 1 where id = $1;`, userID)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
		return tx.QueryRow(`select jwt_version from users where id = $1;`, userID).Scan(&ver)
	})
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string) error {
	return s.mustAffectOne(`update users set last_login_at = $1 where id = $2;`, time.Now(), userID)
}

func (s *Store) mustAffectOne(query string, args ...interface{}) error {
	res, err := s.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
