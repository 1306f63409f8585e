package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/tbxark/surveyagent/types"
)

// SQLiteStore keeps the survey fields, customer context and records in SQLite.
type SQLiteStore struct {
	db       *sql.DB
	keyField string
	writeMu  sync.Mutex
}

type ContextEntry struct {
	Name  string
	Value string
}

func NewSQLiteStore(dbPath, keyField string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db, keyField: keyField}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS survey_fields (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		definition TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS survey_context (
		position INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS survey_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_key TEXT,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_survey_records_key ON survey_records(record_key);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Seed replaces the survey fields and customer context.
func (s *SQLiteStore) Seed(ctx context.Context, fields []types.Field, entries []ContextEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM survey_fields`); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM survey_context`); err != nil {
		return fmt.Errorf("clear context: %w", err)
	}
	for i, f := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO survey_fields (position, name, definition) VALUES (?, ?, ?)`,
			i, f.Name, f.Definition,
		); err != nil {
			return fmt.Errorf("insert field %s: %w", f.Name, err)
		}
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO survey_context (position, name, value) VALUES (?, ?, ?)`,
			i, e.Name, e.Value,
		); err != nil {
			return fmt.Errorf("insert context %s: %w", e.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadInitialContext(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM survey_context ORDER BY position`)
	if err != nil {
		return "", fmt.Errorf("query context: %w", err)
	}
	defer rows.Close()
	var names, values []string
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return "", fmt.Errorf("scan context row: %w", err)
		}
		names = append(names, name)
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.New("no customer context stored")
	}
	return FormatContext(names, values), nil
}

func (s *SQLiteStore) LoadSchema(ctx context.Context) (*types.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, definition FROM survey_fields ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()
	var fields []types.Field
	for rows.Next() {
		var f types.Field
		if err := rows.Scan(&f.Name, &f.Definition); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types.NewSchema(s.keyField, fields...)
}

func (s *SQLiteStore) LoadPreviousRecords(ctx context.Context) (types.PreviousRecords, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM survey_records ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var out types.PreviousRecords
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		var rec types.Record
		if err := sonic.UnmarshalString(data, &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec types.Record) error {
	schema, err := s.LoadSchema(ctx)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	key, hasKey := rec.Get(schema.KeyField())
	if hasKey {
		var id int64
		var data string
		err := tx.QueryRowContext(ctx,
			`SELECT id, data FROM survey_records WHERE record_key = ? ORDER BY id LIMIT 1`,
			normalizeKey(key),
		).Scan(&id, &data)
		switch {
		case err == nil:
			var existing types.Record
			if err := sonic.UnmarshalString(data, &existing); err != nil {
				return fmt.Errorf("decode stored record: %w", err)
			}
			merged, err := Merge(schema, existing, withoutKey(schema, rec))
			if err != nil {
				return err
			}
			encoded, err := sonic.MarshalString(merged)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE survey_records SET data = ?, updated_at = ? WHERE id = ?`,
				encoded, now, id,
			); err != nil {
				return fmt.Errorf("update record: %w", err)
			}
			return tx.Commit()
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("find record: %w", err)
		}
	}

	encoded, err := sonic.MarshalString(schema.Conform(rec))
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var recordKey any
	if hasKey {
		recordKey = normalizeKey(key)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO survey_records (record_key, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		recordKey, encoded, now, now,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return tx.Commit()
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

var _ RecordStore = (*SQLiteStore)(nil)
