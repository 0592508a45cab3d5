package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/mealgen/internal/sqldb"
	"github.com/jonwraymond/mealgen/meal"
)

const entryColumns = `signature_hash, signature_payload, meal_type, source, payload,
	calories, protein_g, carbs_g, fat_g, hit_count, created_at, last_accessed_at`

// SQLStore keeps entries in the generation_cache table of a SQLite or
// PostgreSQL database. Timestamps are stored as Unix nanoseconds.
type SQLStore struct {
	db      *sql.DB
	dialect sqldb.Dialect
	now     func() time.Time

	lookupQuery string
	insertQuery string
	evictQuery  string
}

// NewSQLStore creates a store over an open database. The caller owns db.
func NewSQLStore(db *sql.DB, dialect sqldb.Dialect, now func() time.Time) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     nowFunc(now),
		lookupQuery: dialect.Rebind(`UPDATE generation_cache
	SET hit_count = hit_count + 1, last_accessed_at = ?
	WHERE signature_hash = ? AND meal_type = ?
	RETURNING ` + entryColumns),
		insertQuery: dialect.Rebind(`INSERT INTO generation_cache (` + entryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		evictQuery: dialect.Rebind(`DELETE FROM generation_cache WHERE last_accessed_at < ?`),
	}
}

// Migrate creates the generation_cache table and its indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	blobType, realType := "BLOB", "REAL"
	if s.dialect == sqldb.Postgres {
		blobType, realType = "BYTEA", "DOUBLE PRECISION"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS generation_cache (
			signature_hash TEXT NOT NULL,
			signature_payload TEXT NOT NULL,
			meal_type TEXT NOT NULL,
			source TEXT NOT NULL,
			payload ` + blobType + ` NOT NULL,
			calories ` + realType + ` NOT NULL,
			protein_g ` + realType + ` NOT NULL,
			carbs_g ` + realType + ` NOT NULL,
			fat_g ` + realType + ` NOT NULL,
			hit_count BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			last_accessed_at BIGINT NOT NULL,
			PRIMARY KEY (signature_hash, meal_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generation_cache_meal_type ON generation_cache (meal_type)`,
		`CREATE INDEX IF NOT EXISTS idx_generation_cache_last_accessed ON generation_cache (last_accessed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate generation_cache: %w", err)
		}
	}
	return nil
}

// Lookup records the hit and returns the updated row in one statement.
func (s *SQLStore) Lookup(ctx context.Context, hash string, mealType meal.Type) (*Entry, bool, error) {
	mt, err := checkKey(hash, mealType)
	if err != nil {
		return nil, false, err
	}

	row := s.db.QueryRowContext(ctx, s.lookupQuery, s.now().UnixNano(), hash, string(mt))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: lookup %s: %w", hash, err)
	}
	return e, true, nil
}

// Insert adds a row, relying on the primary key to reject duplicates.
func (s *SQLStore) Insert(ctx context.Context, rec Record) (*Entry, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	e := newEntry(rec, s.now())
	_, err := s.db.ExecContext(ctx, s.insertQuery,
		e.Hash, e.Canonical, string(e.MealType), string(e.Source), e.Payload,
		e.Macros.Calories, e.Macros.ProteinG, e.Macros.CarbsG, e.Macros.FatG,
		e.HitCount, e.CreatedAt.UnixNano(), e.LastAccessedAt.UnixNano(),
	)
	if sqldb.IsUniqueViolation(err) {
		return nil, ErrDuplicateSignature
	}
	if err != nil {
		return nil, fmt.Errorf("store: insert %s: %w", e.Hash, err)
	}
	return e, nil
}

// EvictIdle deletes rows last accessed before the given time.
func (s *SQLStore) EvictIdle(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.evictQuery, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: evict idle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: evict idle: %w", err)
	}
	return int(n), nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                 Entry
		mealType, source  string
		created, lastSeen int64
	)
	err := row.Scan(
		&e.Hash, &e.Canonical, &mealType, &source, &e.Payload,
		&e.Macros.Calories, &e.Macros.ProteinG, &e.Macros.CarbsG, &e.Macros.FatG,
		&e.HitCount, &created, &lastSeen,
	)
	if err != nil {
		return nil, err
	}
	e.MealType = meal.Type(mealType)
	e.Source = Source(source)
	e.CreatedAt = time.Unix(0, created)
	e.LastAccessedAt = time.Unix(0, lastSeen)
	return &e, nil
}

var (
	_ Store   = (*SQLStore)(nil)
	_ Evicter = (*SQLStore)(nil)
	_ Pinger  = (*SQLStore)(nil)
)
