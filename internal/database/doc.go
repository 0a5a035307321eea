// Package database is the SQLite-backed index store.
//
// It persists:
//   - watched and ignored folder registries
//   - image records keyed by path, each with a stable UUID, extracted
//     metadata (as JSON), dimensions, content hash and thumbnail cache key
//   - a small key-value table for bookkeeping such as the last scan time
//
// The schema is managed by goose migrations embedded from migrations/.
// The database runs in WAL mode; writes to the same image path are
// serialized with a per-path lock while reads never wait on writers.
// Search evaluates structured predicates against columns and JSON fields
// using SQLite's JSON1 functions.
package database
