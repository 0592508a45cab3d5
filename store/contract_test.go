package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/mealgen/meal"
	"github.com/jonwraymond/mealgen/signature"
)

// testClock is a manually advanced clock shared by the backend tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testRecord(hash string, mt meal.Type) Record {
	return Record{
		Signature: signature.Signature{Hash: hash, Canonical: `{"v":1,"meal_type":"` + string(mt) + `"}`},
		MealType:  mt,
		Source:    SourceAI,
		Payload:   []byte(`{"title":"lentil soup"}`),
		Macros:    meal.Macros{Calories: 450, ProteinG: 24.5, CarbsG: 60, FatG: 9},
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T, clock *testClock) Store) {
	t.Run("miss has no side effect", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()

		e, ok, err := s.Lookup(ctx, "missing", meal.Dinner)
		if err != nil || ok || e != nil {
			t.Fatalf("Lookup() = %v, %v, %v; want nil, false, nil", e, ok, err)
		}
		if _, err := s.Insert(ctx, testRecord("missing", meal.Dinner)); err != nil {
			t.Fatalf("Insert() after miss error = %v", err)
		}
	})

	t.Run("insert then hit", func(t *testing.T) {
		clock := newTestClock()
		s := newStore(t, clock)
		ctx := context.Background()
		rec := testRecord("h1", meal.Lunch)

		inserted, err := s.Insert(ctx, rec)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if inserted.HitCount != 0 {
			t.Errorf("inserted HitCount = %d, want 0", inserted.HitCount)
		}
		if !inserted.CreatedAt.Equal(clock.Now()) || !inserted.LastAccessedAt.Equal(clock.Now()) {
			t.Errorf("inserted timestamps = %v/%v, want %v", inserted.CreatedAt, inserted.LastAccessedAt, clock.Now())
		}

		clock.Advance(time.Minute)
		got, ok, err := s.Lookup(ctx, "h1", meal.Lunch)
		if err != nil || !ok {
			t.Fatalf("Lookup() = %v, %v", ok, err)
		}
		if got.HitCount != 1 {
			t.Errorf("HitCount = %d, want 1", got.HitCount)
		}
		if !got.LastAccessedAt.Equal(clock.Now()) {
			t.Errorf("LastAccessedAt = %v, want %v", got.LastAccessedAt, clock.Now())
		}
		if !got.CreatedAt.Equal(inserted.CreatedAt) {
			t.Errorf("CreatedAt changed: %v -> %v", inserted.CreatedAt, got.CreatedAt)
		}
		if !bytes.Equal(got.Payload, rec.Payload) {
			t.Errorf("Payload = %s, want %s", got.Payload, rec.Payload)
		}
		if got.Macros != rec.Macros {
			t.Errorf("Macros = %+v, want %+v", got.Macros, rec.Macros)
		}
		if got.Canonical != rec.Signature.Canonical || got.Source != SourceAI || got.MealType != meal.Lunch {
			t.Errorf("unexpected entry: %+v", got)
		}

		got, _, _ = s.Lookup(ctx, "h1", meal.Lunch)
		if got.HitCount != 2 {
			t.Errorf("HitCount after second hit = %d, want 2", got.HitCount)
		}
	})

	t.Run("meal type is part of the key", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()

		if _, err := s.Insert(ctx, testRecord("h2", meal.Breakfast)); err != nil {
			t.Fatalf("Insert(breakfast) error = %v", err)
		}
		if _, ok, _ := s.Lookup(ctx, "h2", meal.Snack); ok {
			t.Error("Lookup(snack) hit a breakfast entry")
		}
		if _, err := s.Insert(ctx, testRecord("h2", meal.Snack)); err != nil {
			t.Errorf("Insert(snack) error = %v", err)
		}
	})

	t.Run("duplicate leaves the stored entry untouched", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()

		if _, err := s.Insert(ctx, testRecord("h3", meal.Dinner)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		other := testRecord("h3", meal.Dinner)
		other.Payload = []byte(`{"title":"other"}`)
		if _, err := s.Insert(ctx, other); !errors.Is(err, ErrDuplicateSignature) {
			t.Fatalf("second Insert() error = %v, want ErrDuplicateSignature", err)
		}

		got, _, _ := s.Lookup(ctx, "h3", meal.Dinner)
		if string(got.Payload) != `{"title":"lentil soup"}` {
			t.Errorf("Payload = %s, want the first insert's", got.Payload)
		}
	})

	t.Run("returned entries are copies", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()

		inserted, _ := s.Insert(ctx, testRecord("h4", meal.Dinner))
		inserted.Payload[0] = 'X'
		inserted.Macros.Calories = 1

		got, _, _ := s.Lookup(ctx, "h4", meal.Dinner)
		got.Payload[0] = 'Y'

		again, _, _ := s.Lookup(ctx, "h4", meal.Dinner)
		if again.Payload[0] != '{' || again.Macros.Calories != 450 {
			t.Errorf("stored entry was mutated through a returned copy: %s %+v", again.Payload, again.Macros)
		}
	})

	t.Run("concurrent inserts admit exactly one", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()

		var (
			wg         sync.WaitGroup
			created    atomic.Int64
			duplicates atomic.Int64
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := testRecord("h5", meal.Dinner)
				rec.Payload = []byte(fmt.Sprintf(`{"n":%d}`, i))
				_, err := s.Insert(ctx, rec)
				switch {
				case err == nil:
					created.Add(1)
				case errors.Is(err, ErrDuplicateSignature):
					duplicates.Add(1)
				default:
					t.Errorf("Insert() error = %v", err)
				}
			}(i)
		}
		wg.Wait()

		if created.Load() != 1 || duplicates.Load() != 15 {
			t.Errorf("created = %d, duplicates = %d; want 1, 15", created.Load(), duplicates.Load())
		}
	})

	t.Run("concurrent hits are all counted", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()
		_, _ = s.Insert(ctx, testRecord("h6", meal.Snack))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, err := s.Lookup(ctx, "h6", meal.Snack); !ok || err != nil {
					t.Errorf("Lookup() = %v, %v", ok, err)
				}
			}()
		}
		wg.Wait()

		got, _, _ := s.Lookup(ctx, "h6", meal.Snack)
		if got.HitCount != 21 {
			t.Errorf("HitCount = %d, want 21", got.HitCount)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		s := newStore(t, newTestClock())
		ctx := context.Background()

		if _, _, err := s.Lookup(ctx, "", meal.Dinner); !errors.Is(err, ErrEmptyHash) {
			t.Errorf("Lookup(empty) error = %v, want ErrEmptyHash", err)
		}
		if _, _, err := s.Lookup(ctx, "h", meal.Type("brunch")); !errors.Is(err, meal.ErrUnknownType) {
			t.Errorf("Lookup(brunch) error = %v, want ErrUnknownType", err)
		}

		bad := testRecord("h7", meal.Dinner)
		bad.Payload = nil
		if _, err := s.Insert(ctx, bad); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Insert(no payload) error = %v, want ErrInvalidRecord", err)
		}
		bad = testRecord("h7", meal.Dinner)
		bad.Macros.FatG = -1
		if _, err := s.Insert(ctx, bad); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Insert(negative macros) error = %v, want ErrInvalidRecord", err)
		}
	})
}
