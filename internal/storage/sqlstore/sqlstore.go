// Package sqlstore implements the storage interfaces against sqlite and
// postgres through one set of queries translated per-flavor at the
// connection boundary.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

// flavor translates a shared query string and error set between drivers.
// Neither flavor aims to support arbitrary SQL, only the statements used
// by this package.
type flavor struct {
	queryReplacers []replacer
	executeTx      func(db *sql.DB, fn func(*sql.Tx) error) error
	alreadyExists  func(err error) bool
	supportsTZ     bool
}

type replacer struct {
	re   *regexp.Regexp
	with string
}

var bindRegexp = regexp.MustCompile(`\$\d+`)

func matchLiteral(s string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(s) + `\b`)
}

const pgUniqueViolation = "23505"

var flavorPostgres = flavor{
	executeTx: func(db *sql.DB, fn func(*sql.Tx) error) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
		for {
			tx, err := db.BeginTx(ctx, opts)
			if err != nil {
				return err
			}
			if err := fn(tx); err != nil {
				tx.Rollback()
				if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "serialization_failure" {
					continue
				}
				return err
			}
			if err := tx.Commit(); err != nil {
				if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "serialization_failure" {
					continue
				}
				return err
			}
			return nil
		}
	},
	alreadyExists: func(err error) bool {
		pqErr, ok := err.(*pq.Error)
		return ok && string(pqErr.Code) == pgUniqueViolation
	},
	supportsTZ: true,
}

var flavorSQLite3 = flavor{
	queryReplacers: []replacer{
		{bindRegexp, "?"},
		{matchLiteral("true"), "1"},
		{matchLiteral("false"), "0"},
		{matchLiteral("boolean"), "integer"},
		{matchLiteral("bytea"), "blob"},
		{matchLiteral("timestamptz"), "timestamp"},
		{regexp.MustCompile(`\bnow\(\)`), "datetime('now')"},
	},
	alreadyExists: func(err error) bool {
		return err != nil && regexp.MustCompile(`UNIQUE constraint failed`).MatchString(err.Error())
	},
}

func (f flavor) translate(query string) string {
	for _, r := range f.queryReplacers {
		query = r.re.ReplaceAllString(query, r.with)
	}
	return query
}

func (c *conn) translateArgs(args []interface{}) []interface{} {
	if c.flavor.supportsTZ {
		return args
	}
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			args[i] = t.UTC()
		}
	}
	return args
}

// conn is the shared connection handle for both flavors.
type conn struct {
	db     *sql.DB
	flavor flavor
	log    logrus.FieldLogger
}

func (c *conn) Close() error { return c.db.Close() }

// Ping verifies the connection is still reachable, for use by health checks.
func (c *conn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *conn) Exec(query string, args ...interface{}) (sql.Result, error) {
	query = c.flavor.translate(query)
	return c.db.Exec(query, c.translateArgs(args)...)
}

func (c *conn) Query(query string, args ...interface{}) (*sql.Rows, error) {
	query = c.flavor.translate(query)
	return c.db.Query(query, c.translateArgs(args)...)
}

func (c *conn) QueryRow(query string, args ...interface{}) *sql.Row {
	query = c.flavor.translate(query)
	return c.db.QueryRow(query, c.translateArgs(args)...)
}

func (c *conn) ExecTx(fn func(tx *trans) error) error {
	if c.flavor.executeTx != nil {
		return c.flavor.executeTx(c.db, func(sqlTx *sql.Tx) error {
			return fn(&trans{sqlTx, c})
		})
	}
	sqlTx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&trans{sqlTx, c}); err != nil {
		sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

type trans struct {
	tx *sql.Tx
	c  *conn
}

func (t *trans) Exec(query string, args ...interface{}) (sql.Result, error) {
	query = t.c.flavor.translate(query)
	return t.tx.Exec(query, t.c.translateArgs(args)...)
}

func (t *trans) Query(query string, args ...interface{}) (*sql.Rows, error) {
	query = t.c.flavor.translate(query)
	return t.tx.Query(query, t.c.translateArgs(args)...)
}

func (t *trans) QueryRow(query string, args ...interface{}) *sql.Row {
	query = t.c.flavor.translate(query)
	return t.tx.QueryRow(query, t.c.translateArgs(args)...)
}

// Config selects and opens one of the two supported backends.
type Config struct {
	Driver          string // "sqlite" or "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store bundles the three repository implementations over one *conn.
type Store struct {
	*conn
}

// Open connects, applies pool bounds, and runs migrations idempotently.
func Open(cfg Config, log logrus.FieldLogger) (*Store, error) {
	var fl flavor
	var driverName string
	switch cfg.Driver {
	case "sqlite":
		fl = flavorSQLite3
		driverName = "sqlite3"
	case "postgres":
		fl = flavorPostgres
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("sqlstore: unknown driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// A single writer at a time; sqlite serializes beyond that anyway.
		db.SetMaxOpenConns(1)
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen == 0 {
			maxOpen = 96
		}
		maxIdle := cfg.MaxIdleConns
		if maxIdle == 0 {
			maxIdle = 2
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	c := &conn{db: db, flavor: fl, log: log}
	if _, err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{c}, nil
}
