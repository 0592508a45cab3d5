package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/mealgen/meal"
	"github.com/jonwraymond/mealgen/signature"
)

// Sentinel errors for store operations.
var (
	// ErrDuplicateSignature is returned by Insert when an entry with the same
	// signature hash and meal type already exists.
	ErrDuplicateSignature = errors.New("store: duplicate signature")

	// ErrInvalidRecord is returned by Insert for records that cannot be stored.
	ErrInvalidRecord = errors.New("store: invalid record")

	// ErrEmptyHash is returned when a lookup key has no hash.
	ErrEmptyHash = errors.New("store: signature hash is empty")
)

// Source tags where an entry's payload came from.
type Source string

const (
	SourceAI   Source = "ai"
	SourceSeed Source = "seed"
)

// Record is the input to Insert.
type Record struct {
	Signature signature.Signature
	MealType  meal.Type
	Source    Source
	Payload   []byte
	Macros    meal.Macros
}

// Validate checks that the record can be stored. An empty source defaults
// to SourceAI.
func (r *Record) Validate() error {
	if r.Signature.Hash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyHash)
	}
	mt, err := meal.ParseType(string(r.MealType))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	r.MealType = mt
	switch r.Source {
	case "":
		r.Source = SourceAI
	case SourceAI, SourceSeed:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRecord, r.Source)
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("%w: payload is empty", ErrInvalidRecord)
	}
	if !r.Macros.NonNegative() {
		return fmt.Errorf("%w: macros must be non-negative", ErrInvalidRecord)
	}
	return nil
}

// Entry is a stored generation result.
type Entry struct {
	Hash           string
	Canonical      string
	MealType       meal.Type
	Source         Source
	Payload        []byte
	Macros         meal.Macros
	HitCount       int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}

func newEntry(r Record, now time.Time) *Entry {
	return &Entry{
		Hash:           r.Signature.Hash,
		Canonical:      r.Signature.Canonical,
		MealType:       r.MealType,
		Source:         r.Source,
		Payload:        append([]byte(nil), r.Payload...),
		Macros:         r.Macros,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

// Store is the generation cache.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Lookup: on a hit, atomically increments the hit count and refreshes
//     the last-accessed time, then returns a copy. On a miss it returns
//     (nil, false, nil) and has no side effect.
//   - Insert: atomically conditional. Returns ErrDuplicateSignature when the
//     (hash, meal type) pair exists, leaving the stored entry untouched.
//   - Ownership: returned entries are copies the caller may modify.
type Store interface {
	Lookup(ctx context.Context, hash string, mealType meal.Type) (*Entry, bool, error)
	Insert(ctx context.Context, rec Record) (*Entry, error)
}

// Pinger is implemented by stores with a remote backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Evicter is implemented by stores that can drop idle entries on demand.
type Evicter interface {
	// EvictIdle removes entries last accessed before the given time and
	// returns how many were removed.
	EvictIdle(ctx context.Context, before time.Time) (int, error)
}

// checkKey validates a lookup key and returns the normalized meal type.
func checkKey(hash string, mealType meal.Type) (meal.Type, error) {
	if hash == "" {
		return "", ErrEmptyHash
	}
	return meal.ParseType(string(mealType))
}

func nowFunc(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
