package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_groups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id   INTEGER NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL,
	username   TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_group_recent
	ON chat_messages (group_id, created_at DESC, id DESC);
`

// SQLiteDB stores groups and messages in a single SQLite file. Timestamps are
// unix nanoseconds.
type SQLiteDB struct {
	db *sql.DB
}

var _ Database = (*SQLiteDB)(nil)

// NewSQLiteDB opens (creating if needed) the database at path and applies the schema.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("connected to database", "driver", DriverSQLite, "path", path)
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) GetOrCreateGroup(ctx context.Context, name string) (*models.Group, error) {
	query := `
		INSERT INTO chat_groups (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id, name, created_at`

	group := &models.Group{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, name, time.Now().UnixNano()).Scan(&group.ID, &group.Name, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create group %q: %w", name, err)
	}
	group.CreatedAt = fromNanos(createdAt)
	return group, nil
}

func (s *SQLiteDB) CreateMessage(ctx context.Context, author models.Author, groupID int64, content string) (*models.Message, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (group_id, user_id, username, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		groupID, author.UserID, author.Username, content, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	return &models.Message{
		ID:        id,
		GroupID:   groupID,
		UserID:    author.UserID,
		Username:  author.Username,
		Content:   content,
		CreatedAt: fromNanos(now.UnixNano()),
	}, nil
}

func (s *SQLiteDB) DeleteMessage(ctx context.Context, userID, messageID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = ? AND user_id = ?`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	return n == 1, nil
}

func (s *SQLiteDB) ListRecent(ctx context.Context, groupID int64, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.group_id, g.name, m.user_id, m.username, m.content, m.created_at
		FROM chat_messages m
		JOIN chat_groups g ON g.id = m.group_id
		WHERE m.group_id = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`

	messages, err := s.queryMessages(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *SQLiteDB) ListGroups(ctx context.Context) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM chat_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		var createdAt int64
		if err := rows.Scan(&group.ID, &group.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		group.CreatedAt = fromNanos(createdAt)
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (s *SQLiteDB) ListMessages(ctx context.Context, groupName string, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.group_id, g.name, m.user_id, m.username, m.content, m.created_at
		FROM chat_messages m
		JOIN chat_groups g ON g.id = m.group_id
		WHERE ? = '' OR g.name = ?
		ORDER BY m.id
		LIMIT ?`

	messages, err := s.queryMessages(ctx, query, groupName, groupName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteDB) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.GroupName, &msg.UserID, &msg.Username, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = fromNanos(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func fromNanos(v int64) time.Time {
	return time.Unix(0, v).UTC()
}
