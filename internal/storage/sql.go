package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"batsoc/internal/model"
)

// dialect holds the statements that differ between SQL backends. Every
// statement uses ? placeholders.
type dialect struct {
	name        string
	driver      string
	createStmts []string
	upsertModel string
	upsertRun   string
}

// SQLStore keeps JSON-encoded records in two tables keyed by id.
type SQLStore struct {
	dialect dialect
	dsn     string

	mu sync.RWMutex
	db *sql.DB
}

func newSQLStore(d dialect, dsn string) *SQLStore {
	return &SQLStore{dialect: d, dsn: dsn}
}

func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return fmt.Errorf("%s dsn is required", s.dialect.name)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	for _, stmt := range s.dialect.createStmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("create %s tables: %w", s.dialect.name, err)
		}
	}

	s.db = db
	return nil
}

func (s *SQLStore) SaveModel(ctx context.Context, record model.ModelRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := EncodeModel(record)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.dialect.upsertModel, record.ID, record.CreatedAtUTC, payload)
	return err
}

func (s *SQLStore) GetModel(ctx context.Context, id string) (model.ModelRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.ModelRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM soc_models WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ModelRecord{}, false, nil
		}
		return model.ModelRecord{}, false, err
	}

	record, err := DecodeModel(payload)
	if err != nil {
		return model.ModelRecord{}, false, fmt.Errorf("decode model %s: %w", id, err)
	}
	return record, true, nil
}

func (s *SQLStore) ListModels(ctx context.Context) ([]model.ModelRecord, error) {
	payloads, err := s.listPayloads(ctx, `SELECT payload FROM soc_models ORDER BY created_at_utc DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	out := make([]model.ModelRecord, 0, len(payloads))
	for _, payload := range payloads {
		record, err := DecodeModel(payload)
		if err != nil {
			return nil, fmt.Errorf("decode model: %w", err)
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *SQLStore) SaveRun(ctx context.Context, record model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := EncodeRun(record)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.dialect.upsertRun, record.ID, record.ModelID, record.CreatedAtUTC, payload)
	return err
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM soc_runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	record, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return record, true, nil
}

func (s *SQLStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	payloads, err := s.listPayloads(ctx, `SELECT payload FROM soc_runs ORDER BY created_at_utc DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(payloads))
	for _, payload := range payloads {
		record, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *SQLStore) listPayloads(ctx context.Context, query string) ([][]byte, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, rows.Err()
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}
