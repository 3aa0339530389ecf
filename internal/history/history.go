package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Lookup when no exchange matches the key
var ErrNotFound = errors.New("exchange not found")

// Exchange represents one completed prompt/completion pair
type Exchange struct {
	ID         string    `json:"id"`
	CacheKey   string    `json:"cache_key"`
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Store persists exchanges in SQLite
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createExchangesTable := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id TEXT PRIMARY KEY,
		cache_key TEXT NOT NULL,
		model TEXT,
		prompt TEXT,
		response TEXT,
		created_at DATETIME,
		duration_ms INTEGER
	);`

	createKeyIndex := `CREATE INDEX IF NOT EXISTS idx_exchanges_cache_key ON exchanges(cache_key);`

	if _, err := db.Exec(createExchangesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create exchanges table: %w", err)
	}

	if _, err := db.Exec(createKeyIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache key index: %w", err)
	}

	return &Store{db: db}, nil
}

// Save inserts an exchange, assigning an ID and timestamp when missing
func (s *Store) Save(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	// Stored as text; a single zone keeps ORDER BY created_at chronological
	ex.CreatedAt = ex.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO exchanges (id, cache_key, model, prompt, response, created_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		ex.ID, ex.CacheKey, ex.Model, ex.Prompt, ex.Response, ex.CreatedAt, ex.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Lookup returns the most recent exchange stored under key
func (s *Store) Lookup(ctx context.Context, key string) (*Exchange, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, cache_key, model, prompt, response, created_at, duration_ms FROM exchanges WHERE cache_key = ? ORDER BY created_at DESC LIMIT 1",
		key,
	)

	var ex Exchange
	err := row.Scan(&ex.ID, &ex.CacheKey, &ex.Model, &ex.Prompt, &ex.Response, &ex.CreatedAt, &ex.DurationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange: %w", err)
	}
	return &ex, nil
}

// Recent returns up to n exchanges, newest first
func (s *Store) Recent(ctx context.Context, n int) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, cache_key, model, prompt, response, created_at, duration_ms FROM exchanges ORDER BY created_at DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []Exchange{}
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.ID, &ex.CacheKey, &ex.Model, &ex.Prompt, &ex.Response, &ex.CreatedAt, &ex.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
