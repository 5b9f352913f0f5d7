//go:build sqlite

package storage

import (
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	createStmts: []string{
		`CREATE TABLE IF NOT EXISTS soc_models (
			id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS soc_runs (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
	},
	upsertModel: `
		INSERT INTO soc_models (id, created_at_utc, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload`,
	upsertRun: `
		INSERT INTO soc_runs (id, model_id, created_at_utc, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model_id = excluded.model_id,
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload`,
}

func NewSQLiteStore(path string) *SQLStore {
	return newSQLStore(sqliteDialect, path)
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
