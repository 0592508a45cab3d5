package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/mealgen/meal"
)

// DefaultRedisPrefix namespaces entry keys.
const DefaultRedisPrefix = "mealgen:cache:"

// insertScript writes the entry hash only if the key is absent.
// KEYS[1] entry key; ARGV[1] idle TTL in ms (0 = none); ARGV[2..] field/value pairs.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
local ttl = tonumber(ARGV[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// lookupScript records a hit and returns the entry, or nil on a miss.
// KEYS[1] entry key; ARGV[1] access time in ns; ARGV[2] idle TTL in ms.
var lookupScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'hit_count', 1)
redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return redis.call('HGETALL', KEYS[1])
`)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix is prepended to every entry key.
	// Default: "mealgen:cache:"
	Prefix string

	// IdleTTL expires entries not hit for this long. Zero keeps entries
	// until removed externally.
	IdleTTL time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// RedisStore keeps each entry in its own Redis hash. Insert-if-absent and
// hit bookkeeping run as Lua scripts, so each is atomic on the server even
// with many processes sharing the instance.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisStore creates a store over client. The caller owns client.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = DefaultRedisPrefix
	}
	if opts.IdleTTL < 0 {
		opts.IdleTTL = 0
	}
	opts.Now = nowFunc(opts.Now)
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) key(hash string, mealType meal.Type) string {
	return s.opts.Prefix + string(mealType) + ":" + hash
}

// Lookup records the hit and returns the entry.
func (s *RedisStore) Lookup(ctx context.Context, hash string, mealType meal.Type) (*Entry, bool, error) {
	mt, err := checkKey(hash, mealType)
	if err != nil {
		return nil, false, err
	}

	res, err := lookupScript.Run(ctx, s.client, []string{s.key(hash, mt)},
		s.opts.Now().UnixNano(), s.opts.IdleTTL.Milliseconds()).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: redis lookup %s: %w", hash, err)
	}

	e, err := decodeRedisEntry(res)
	if err != nil {
		return nil, false, fmt.Errorf("store: redis lookup %s: %w", hash, err)
	}
	return e, true, nil
}

// Insert stores rec unless its key already exists.
func (s *RedisStore) Insert(ctx context.Context, rec Record) (*Entry, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	e := newEntry(rec, s.opts.Now())
	args := []any{
		s.opts.IdleTTL.Milliseconds(),
		"signature_payload", e.Canonical,
		"meal_type", string(e.MealType),
		"source", string(e.Source),
		"payload", e.Payload,
		"calories", formatFloat(e.Macros.Calories),
		"protein_g", formatFloat(e.Macros.ProteinG),
		"carbs_g", formatFloat(e.Macros.CarbsG),
		"fat_g", formatFloat(e.Macros.FatG),
		"hit_count", e.HitCount,
		"created_at", e.CreatedAt.UnixNano(),
		"last_accessed_at", e.LastAccessedAt.UnixNano(),
		"signature_hash", e.Hash,
	}

	created, err := insertScript.Run(ctx, s.client, []string{s.key(e.Hash, e.MealType)}, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("store: redis insert %s: %w", e.Hash, err)
	}
	if created == 0 {
		return nil, ErrDuplicateSignature
	}
	return e, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func decodeRedisEntry(flat []any) (*Entry, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("malformed entry: odd field count %d", len(flat))
	}

	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}

	var (
		e    Entry
		errs []error
	)
	num := func(name string) float64 {
		f, err := strconv.ParseFloat(fields[name], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
		}
		return f
	}
	integer := func(name string) int64 {
		n, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", name, err))
		}
		return n
	}

	e.Hash = fields["signature_hash"]
	e.Canonical = fields["signature_payload"]
	e.MealType = meal.Type(fields["meal_type"])
	e.Source = Source(fields["source"])
	e.Payload = []byte(fields["payload"])
	e.Macros = meal.Macros{
		Calories: num("calories"),
		ProteinG: num("protein_g"),
		CarbsG:   num("carbs_g"),
		FatG:     num("fat_g"),
	}
	e.HitCount = integer("hit_count")
	e.CreatedAt = time.Unix(0, integer("created_at"))
	e.LastAccessedAt = time.Unix(0, integer("last_accessed_at"))

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &e, nil
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)
