package storage

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	createStmts: []string{
		`CREATE TABLE IF NOT EXISTS soc_models (
			id VARCHAR(64) PRIMARY KEY,
			created_at_utc VARCHAR(40) NOT NULL,
			payload LONGBLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS soc_runs (
			id VARCHAR(64) PRIMARY KEY,
			model_id VARCHAR(64) NOT NULL,
			created_at_utc VARCHAR(40) NOT NULL,
			payload LONGBLOB NOT NULL
		)`,
	},
	upsertModel: `
		INSERT INTO soc_models (id, created_at_utc, payload)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			created_at_utc = VALUES(created_at_utc),
			payload = VALUES(payload)`,
	upsertRun: `
		INSERT INTO soc_runs (id, model_id, created_at_utc, payload)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			model_id = VALUES(model_id),
			created_at_utc = VALUES(created_at_utc),
			payload = VALUES(payload)`,
}

// NewMySQLStore validates dsn in go-sql-driver form
// (user:pass@tcp(host:3306)/dbname) and returns an uninitialized store.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("mysql dsn must name a database")
	}
	return newSQLStore(mysqlDialect, cfg.FormatDSN()), nil
}
