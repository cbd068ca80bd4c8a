// Package state manages the SQLite database that persists country records
// across restarts.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. Every mutation goes through
// [Store.BulkInsert], [Store.ToggleFavorite] or [Store.Clear]; each one
// notifies live subscriptions created by [Store.ObserveAll] after it commits.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/njoerd114/countrysync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS countries (
    cca3          TEXT    PRIMARY KEY,
    common_name   TEXT    NOT NULL,
    official_name TEXT    NOT NULL DEFAULT '',
    region        TEXT    NOT NULL DEFAULT '',
    favorite      INTEGER NOT NULL DEFAULT 0,
    content_hash  TEXT    NOT NULL DEFAULT '',
    payload       TEXT    NOT NULL,
    inserted_at   TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_countries_common_name ON countries (common_name);
CREATE INDEX IF NOT EXISTS idx_countries_common_name_nocase ON countries (common_name COLLATE NOCASE);
`

var (
	// ErrStoreUnavailable marks failures to open or query the database.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDuplicateKey is returned by BulkInsert when an identity code already
	// exists in the store or appears twice in the batch.
	ErrDuplicateKey = errors.New("duplicate identity code")
)

// Store is the SQLite-backed country repository.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// DefaultDBPath returns the default path for the country database:
// ~/.local/share/countrysync/countries.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "countrysync", "countries.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance. Failures wrap
// [ErrStoreUnavailable].
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating state directory: %v", ErrStoreUnavailable, err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database %q: %v", ErrStoreUnavailable, path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL. This also serialises
	// concurrent favorite toggles on the same record.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: applying schema: %v", ErrStoreUnavailable, err)
	}

	return &Store{db: db, subs: make(map[uint64]*Subscription)}, nil
}

// Close ends all live subscriptions and releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// ObserveAll returns a live subscription to the full record set ordered by
// display name. The first emission is the current contents; another follows
// every committed mutation. Query failures arrive as [Snapshot.Err].
func (s *Store) ObserveAll(ctx context.Context) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	sub := NewSubscription(ctx, s.All, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
	s.subs[id] = sub
	return sub
}

// notifyAll schedules a fresh emission on every live subscription.
func (s *Store) notifyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sub.Notify()
	}
}

// All returns every stored record ordered by display name.
func (s *Store) All(ctx context.Context) ([]model.Country, error) {
	const q = `SELECT payload, favorite FROM countries ORDER BY common_name ASC, cca3 ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: querying countries: %v", ErrStoreUnavailable, err)
	}
	return scanCountries(rows)
}

// Get returns the record whose display name (ignoring ASCII case) or
// identity code equals key, or (nil, nil) if no such record exists. An exact
// name match wins over a case-folded one.
func (s *Store) Get(ctx context.Context, key string) (*model.Country, error) {
	const q = `
		SELECT payload, favorite FROM countries
		WHERE common_name = ? COLLATE NOCASE OR cca3 = ?
		ORDER BY common_name = ? DESC, common_name ASC
		LIMIT 1`
	var payload string
	var favorite bool
	err := s.db.QueryRowContext(ctx, q, key, strings.ToUpper(key), key).Scan(&payload, &favorite)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("looking up country %q: %w", key, err)
	}
	c, err := decodeCountry(payload, favorite)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FetchNeighbors returns the stored records whose identity code appears in
// country.Borders. Border codes with no stored record are ignored.
func (s *Store) FetchNeighbors(ctx context.Context, country model.Country) ([]model.Country, error) {
	if len(country.Borders) == 0 {
		return []model.Country{}, nil
	}

	placeholders := make([]string, len(country.Borders))
	args := make([]any, len(country.Borders))
	for i, code := range country.Borders {
		placeholders[i] = "?"
		args[i] = code
	}
	q := `SELECT payload, favorite FROM countries WHERE cca3 IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY common_name ASC, cca3 ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying neighbors of %s: %w", country.CCA3, err)
	}
	return scanCountries(rows)
}

// BulkInsert writes countries in a single transaction. It is insert-only: if
// any identity code already exists, or repeats within the batch, nothing is
// written and the error wraps [ErrDuplicateKey].
func (s *Store) BulkInsert(ctx context.Context, countries []model.Country) error {
	if len(countries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO countries
		    (cca3, common_name, official_name, region, favorite,
		     content_hash, payload, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range countries {
		c := countries[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("inserting record %d: %w", i, err)
		}
		payload, err := encodeCountry(c)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", c.CCA3, err)
		}
		_, err = stmt.ExecContext(ctx,
			c.CCA3,
			c.Name.Common,
			c.Name.Official,
			c.Region,
			c.Favorite,
			c.ContentHash(),
			payload,
			now,
		)
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, c.CCA3)
		}
		if err != nil {
			return fmt.Errorf("inserting %s: %w", c.CCA3, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert of %d countries: %w", len(countries), err)
	}
	s.notifyAll()
	return nil
}

// ToggleFavorite flips the favorite flag on every record whose display name
// (ignoring ASCII case) or identity code equals key and returns how many
// records changed. Zero matches is not an error.
func (s *Store) ToggleFavorite(ctx context.Context, key string) (int64, error) {
	const q = `UPDATE countries SET favorite = 1 - favorite WHERE common_name = ? COLLATE NOCASE OR cca3 = ?`
	res, err := s.db.ExecContext(ctx, q, key, strings.ToUpper(key))
	if err != nil {
		return 0, fmt.Errorf("toggling favorite for %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("toggling favorite for %q: %w", key, err)
	}
	if n > 0 {
		s.notifyAll()
	}
	return n, nil
}

// IsEmpty reports whether the countries table has no rows.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM countries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting countries: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// Clear deletes every stored record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM countries`); err != nil {
		return fmt.Errorf("clearing countries: %w", err)
	}
	s.notifyAll()
	return nil
}

// --- helpers -----------------------------------------------------------------

// isDuplicate reports whether err is a primary-key or unique violation.
func isDuplicate(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// encodeCountry serialises a record for the payload column. Favorite lives in
// its own column and is cleared from the payload.
func encodeCountry(c model.Country) (string, error) {
	c.Favorite = false
	c.Normalize()
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCountry(payload string, favorite bool) (model.Country, error) {
	var c model.Country
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return model.Country{}, fmt.Errorf("decoding stored country: %w", err)
	}
	c.Favorite = favorite
	c.Normalize()
	return c, nil
}

func scanCountries(rows *sql.Rows) ([]model.Country, error) {
	defer func() { _ = rows.Close() }()

	countries := []model.Country{}
	for rows.Next() {
		var payload string
		var favorite bool
		if err := rows.Scan(&payload, &favorite); err != nil {
			return nil, fmt.Errorf("scanning country row: %w", err)
		}
		c, err := decodeCountry(payload, favorite)
		if err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}
