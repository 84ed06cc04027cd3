package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly/internal/storage"
)

var _ storage.URLRepository = (*Store)(nil)

func urlHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// InsertURL is atomic on the content hash: a row already holding url's hash
// short-circuits with created=false; otherwise a fresh row is attempted and
// a unique-code collision surfaces as storage.ErrDuplicate.
func (s *Store) InsertURL(ctx context.Context, code, url string) (storage.UpsertResult, storage.URLRecord, error) {
	hash := urlHash(url)

	var result storage.UpsertResult
	var rec storage.URLRecord

	err := s.ExecTx(func(tx *trans) error {
		existing, err := getURLByHash(tx, hash)
		if err == nil {
			result = storage.UpsertResult{ID: existing.ID, Created: false}
			rec = existing
			return nil
		}
		if err != storage.ErrNotFound {
			return err
		}

		id := uuid.New().String()
		now := time.Now()
		_, err = tx.Exec(`
			insert into urls (id, code, url, url_hash, created_at)
			values ($1, $2, $3, $4, $5);
		`, id, code, url, hash, now)
		if err != nil {
			if s.flavor.alreadyExists(err) {
				return storage.ErrDuplicate
			}
			return fmt.Errorf("%w: insert url: %v", storage.ErrQuery, err)
		}

		result = storage.UpsertResult{ID: id, Created: true}
		rec = storage.URLRecord{ID: id, Code: code, URL: url, URLHash: hash, CreatedAt: now}
		return nil
	})
	if err != nil {
		return storage.UpsertResult{}, storage.URLRecord{}, err
	}
	return result, rec, nil
}

func getURLByHash(q querier, hash string) (storage.URLRecord, error) {
	var r storage.URLRecord
	err := q.QueryRow(`
		select id, code, url, url_hash, created_at from urls where url_hash = $1;
	`, hash).Scan(&r.ID, &r.Code, &r.URL, &r.URLHash, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return storage.URLRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.URLRecord{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return r, nil
}

// querier abstracts conn vs trans for read-only helpers.
type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// GetURL resolves urls.code first, then falls back to an alias join.
func (s *Store) GetURL(ctx context.Context, code string) (storage.URLRecord, error) {
	var r storage.URLRecord
	err := s.QueryRow(`
		select id, code, url, url_hash, created_at from urls where code = $1;
	`, code).Scan(&r.ID, &r.Code, &r.URL, &r.URLHash, &r.CreatedAt)
	if err == nil {
		return r, nil
	}
	if err != sql.ErrNoRows {
		return storage.URLRecord{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}

	err = s.QueryRow(`
		select u.id, u.code, u.url, u.url_hash, u.created_at
		from aliases a join urls u on u.id = a.target_id
		where a.alias = $1;
	`, code).Scan(&r.ID, &r.Code, &r.URL, &r.URLHash, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return storage.URLRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.URLRecord{}, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return r, nil
}

func (s *Store) GetByURL(ctx context.Context, url string) (storage.URLRecord, error) {
	return getURLByHash(s.conn, urlHash(url))
}

func (s *Store) ListShortCodes(ctx context.Context, offset, limit int) ([]string, error) {
	rows, err := s.Query(`
		select code from urls order by code limit $1 offset $2;
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return codes, nil
}

func (s *Store) InsertAlias(ctx context.Context, alias, targetID string) error {
	var id string
	err := s.QueryRow(`select id from urls where id = $1;`, targetID).Scan(&id)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	_, err = s.Exec(`insert into aliases (alias, target_id) values ($1, $2);`, alias, targetID)
	if err != nil {
		if s.flavor.alreadyExists(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("%w: insert alias: %v", storage.ErrQuery, err)
	}
	return nil
}

func (s *Store) LoadBloomSnapshot(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.QueryRow(`select data from bloom_snapshots where name = $1;`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrQuery, err)
	}
	return data, nil
}

func (s *Store) SaveBloomSnapshot(ctx context.Context, name string, data []byte) error {
	return s.ExecTx(func(tx *trans) error {
		res, err := tx.Exec(`update bloom_snapshots set data = $1, updated_at = $2 where name = $3;`,
			data, time.Now(), name)
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}
		if n > 0 {
			return nil
		}
		_, err = tx.Exec(`insert into bloom_snapshots (name, data, updated_at) values ($1, $2, $3);`,
			name, data, time.Now())
		if err != nil {
			return fmt.Errorf("%w: %v", storage.ErrQuery, err)
		}
		return nil
	})
}
