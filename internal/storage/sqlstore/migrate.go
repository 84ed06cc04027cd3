package sqlstore

import (
	"database/sql"
	"fmt"
)

func (c *conn) migrate() (int, error) {
	_, err := c.Exec(`
		create table if not exists migrations (
			num integer not null,
			at timestamptz not null
		);
	`)
	if err != nil {
		return 0, fmt.Errorf("creating migration table: %v", err)
	}

	i := 0
	for {
		var done bool
		err := c.ExecTx(func(tx *trans) error {
			var (
				num sql.NullInt64
				n   int
			)
			if err := tx.QueryRow(`select max(num) from migrations;`).Scan(&num); err != nil {
				return fmt.Errorf("select max migration: %v", err)
			}
			if num.Valid {
				n = int(num.Int64)
			}
			if n >= len(migrations) {
				done = true
				return nil
			}

			migrationNum := n + 1
			if _, err := tx.Exec(migrations[n].stmt); err != nil {
				return fmt.Errorf("migration %d failed: %v", migrationNum, err)
			}
			if _, err := tx.Exec(`insert into migrations (num, at) values ($1, now());`, migrationNum); err != nil {
				return fmt.Errorf("update migration table: %v", err)
			}
			return nil
		})
		if err != nil {
			return i, err
		}
		if done {
			break
		}
		i++
	}
	return i, nil
}

type migration struct {
	stmt string
}

// Every flavor shares one migration list; flavor.translate rewrites the
// type names and bind placeholders per driver.
var migrations = []migration{
	{stmt: `
		create table urls (
			id text not null primary key,
			code text not null unique,
			url text not null,
			url_hash text not null unique,
			created_at timestamptz not null
		);

		create table aliases (
			alias text not null primary key,
			target_id text not null references urls(id)
		);

		create table bloom_snapshots (
			name text not null primary key,
			data bytea not null,
			updated_at timestamptz not null
		);
	`},
	{stmt: `
		create table users (
			id text not null primary key,
			email text not null unique,
			password_hash text not null,
			display_name text not null,
			is_email_verified boolean not null,
			created_at timestamptz not null,
			last_login_at timestamptz,
			jwt_version integer not null
		);
	`},
	{stmt: `
		create table refresh_token_devices (
			id text not null primary key,
			user_id text not null references users(id),
			device_id text not null,
			current_hash text not null,
			previous_hash text,
			absolute_expires timestamptz not null,
			revoked_at timestamptz,
			last_rotated_at timestamptz not null,
			user_agent text not null,
			ip text not null,
			unique (user_id, device_id)
		);
	`},
	{stmt: `
		create table authentication_challenges (
			id text not null primary key,
			user_id text not null references users(id),
			action text not null,
			target text not null,
			code_hash text not null,
			attempts integer not null,
			created_at timestamptz not null,
			expires_at timestamptz not null,
			confirmed_at timestamptz
		);
	`},
	{stmt: `
		create table sign_in_attempts (
			id text not null primary key,
			user_id text,
			ip text not null,
			target text not null,
			success boolean not null,
			user_agent text not null,
			created_at timestamptz not null
		);
	`},
	{stmt: `
		create index idx_sign_in_attempts_ip on sign_in_attempts (ip, created_at);
	`},
	{stmt: `
		create index idx_sign_in_attempts_user on sign_in_attempts (user_id, created_at);
	`},
	{stmt: `
		create index idx_challenges_user_action on authentication_challenges (user_id, action, confirmed_at);
	`},
}
