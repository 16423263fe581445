// Package storage remembers which group each chat picked.
//
// Drivers:
//   - "file": a single JSON object keyed by chat id, rewritten atomically
//   - "sqlite": a SQLite database via modernc.org/sqlite
//   - "memory": process-local, for tests and throwaway runs
package storage
