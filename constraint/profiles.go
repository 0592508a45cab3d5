package constraint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonwraymond/mealgen/internal/sqldb"
)

// MemoryProfileStore is an in-memory ProfileStore.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]Profile)}
}

// Put stores or replaces a profile keyed by its UserID.
func (s *MemoryProfileStore) Put(p Profile) {
	s.mu.Lock()
	s.profiles[p.UserID] = p
	s.mu.Unlock()
}

// GetProfile returns a copy of the stored profile.
func (s *MemoryProfileStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	p, ok := s.profiles[userID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	p.Allergies = cloneStrings(p.Allergies)
	p.AvoidTags = cloneStrings(p.AvoidTags)
	p.PreferTags = cloneStrings(p.PreferTags)
	p.Directive = p.Directive.clone()
	return &p, nil
}

// SQLProfileStore reads profiles stored as JSON documents in user_profiles.
type SQLProfileStore struct {
	db      *sql.DB
	dialect sqldb.Dialect
}

// NewSQLProfileStore creates a profile store over an open database.
func NewSQLProfileStore(db *sql.DB, dialect sqldb.Dialect) *SQLProfileStore {
	return &SQLProfileStore{db: db, dialect: dialect}
}

// Migrate creates the user_profiles table if it does not exist.
func (s *SQLProfileStore) Migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		profile TEXT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("constraint: migrate user_profiles: %w", err)
	}
	return nil
}

// Save upserts a profile document.
func (s *SQLProfileStore) Save(ctx context.Context, p Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("constraint: encode profile: %w", err)
	}
	q := s.dialect.Rebind(`INSERT INTO user_profiles (user_id, profile) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET profile = excluded.profile`)
	if _, err := s.db.ExecContext(ctx, q, p.UserID, string(doc)); err != nil {
		return fmt.Errorf("constraint: save profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetProfile loads and decodes the stored profile.
func (s *SQLProfileStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	q := s.dialect.Rebind(`SELECT profile FROM user_profiles WHERE user_id = ?`)

	var doc string
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("constraint: load profile %s: %w", userID, err)
	}

	var p Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidProfile, userID, err)
	}
	p.UserID = userID
	return &p, nil
}

var (
	_ ProfileStore = (*MemoryProfileStore)(nil)
	_ ProfileStore = (*SQLProfileStore)(nil)
)
