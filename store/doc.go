// Package store persists generated results keyed by request signature.
//
// A Store answers two questions atomically: "is there an entry for this
// signature and meal type" (Lookup, which also records the hit) and "store
// this entry unless one already exists" (Insert). The conditional insert is
// what lets several processes share a backend without both keeping a result
// for the same signature.
//
// Three backends are provided:
//
//   - MemoryStore: sharded in-process map.
//   - SQLStore: SQLite or PostgreSQL table.
//   - RedisStore: one Redis hash per entry, maintained by Lua scripts.
//
// Entries are never evicted unless an eviction policy is configured. The
// memory and SQL stores implement Evicter and can be swept by a Sweeper;
// the Redis store expires idle entries with a key TTL instead.
package store
