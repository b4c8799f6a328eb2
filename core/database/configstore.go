package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/chatgate/core/logger"
)

// ErrNoRevision is returned by PostgresStore.Load while bot_config is empty.
var ErrNoRevision = errors.New("no config revision stored")

const (
	selectLatestRevision = `SELECT content FROM bot_config ORDER BY id DESC LIMIT 1`
	insertRevision       = `INSERT INTO bot_config (content) VALUES ($1)`
	countRevisions       = `SELECT COUNT(*) FROM bot_config`
)

// PostgresStore keeps every saved configuration as a new row. Load returns the newest one.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load returns the newest stored configuration text.
func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	var content string
	err := s.db.GetContext(ctx, &content, selectLatestRevision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRevision
	}
	if err != nil {
		return nil, fmt.Errorf("load config revision: %w", err)
	}
	return []byte(content), nil
}

// Save appends data as the newest revision.
func (s *PostgresStore) Save(ctx context.Context, data []byte) error {
	if _, err := s.db.ExecContext(ctx, insertRevision, string(data)); err != nil {
		return fmt.Errorf("save config revision: %w", err)
	}
	logger.DB.LogAttrs(ctx, slog.LevelInfo, "config revision saved",
		slog.String("event", "config.save"),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Revisions counts stored revisions.
func (s *PostgresStore) Revisions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countRevisions); err != nil {
		return 0, fmt.Errorf("count config revisions: %w", err)
	}
	return n, nil
}

// Describe names the store in logs.
func (s *PostgresStore) Describe() string {
	return "postgres:bot_config"
}
