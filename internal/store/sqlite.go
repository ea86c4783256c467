package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/foundry-chat-proxy/internal/domain"
	_ "modernc.org/sqlite"
)

// maxListLimit caps ListExchanges.
const maxListLimit = 500

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		reply TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		simulated INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_thread ON exchanges(thread_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordExchange stores a completed exchange.
func (s *SQLiteStore) RecordExchange(ctx context.Context, ex *domain.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	simulated := 0
	if ex.Simulated {
		simulated = 1
	}

	result, err := s.db.ExecContext(ctx, `
	INSERT INTO exchanges (thread_id, user_message, reply, agent_name, simulated, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ThreadID, ex.UserMessage, ex.Reply, ex.AgentName, simulated, ex.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	ex.ID = id
	return nil
}

// ListExchanges returns a thread's most recent exchanges, oldest first.
func (s *SQLiteStore) ListExchanges(ctx context.Context, threadID string, limit int) ([]*domain.Exchange, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, thread_id, user_message, reply, agent_name, simulated, created_at
		FROM (
			SELECT * FROM exchanges WHERE thread_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close exchange rows", "error", closeErr)
		}
	}()

	var exchanges []*domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		var simulated int
		var createdAt int64

		if err := rows.Scan(
			&ex.ID, &ex.ThreadID, &ex.UserMessage, &ex.Reply,
			&ex.AgentName, &simulated, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}

		ex.Simulated = simulated != 0
		ex.CreatedAt = time.UnixMilli(createdAt).UTC()
		exchanges = append(exchanges, &ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}

	return exchanges, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
