package engine

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	_ "github.com/mattn/go-sqlite3"

	"pnl_engine/internal/core"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    data       TEXT NOT NULL,
    checksum   BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// SQLiteStore persists settings in a single-row SQLite table with a
// content checksum. Writes run through a retry pipeline so a transient
// lock on the database file does not lose an update.
type SQLiteStore struct {
	db       *sql.DB
	pipeline failsafe.Executor[any]
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(settingsSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	retryPolicy := retrypolicy.NewBuilder[any]().
		WithBackoff(50*time.Millisecond, 1*time.Second).
		WithMaxRetries(3).
		Build()

	return &SQLiteStore{
		db:       db,
		pipeline: failsafe.With[any](retryPolicy),
	}, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings core.Settings) error {
	return s.pipeline.Run(func() error {
		return s.saveOnce(ctx, settings)
	})
}

func (s *SQLiteStore) saveOnce(ctx context.Context, settings core.Settings) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Validate JSON (round-trip test)
	var check core.Settings
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO settings (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query, string(data), checksum[:], time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write settings to db: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (*core.Settings, error) {
	query := `SELECT data, checksum FROM settings WHERE id = 1`
	var data string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, query).Scan(&data, &storedChecksum)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read settings from db: %w", err)
	}

	// Verify checksum
	computedChecksum := sha256.Sum256([]byte(data))
	if len(storedChecksum) != len(computedChecksum) {
		return nil, fmt.Errorf("checksum length mismatch: expected %d, got %d", len(computedChecksum), len(storedChecksum))
	}
	for i := range computedChecksum {
		if storedChecksum[i] != computedChecksum[i] {
			return nil, fmt.Errorf("checksum verification failed: data corruption detected")
		}
	}

	var settings core.Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &settings, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
