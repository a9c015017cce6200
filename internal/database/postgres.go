package database

import (
	"context"
	"fmt"
	"slices"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_groups (
	id         BIGSERIAL PRIMARY KEY,
	name       VARCHAR(100) NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	group_id   BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
	user_id    BIGINT NOT NULL,
	username   TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_group_recent
	ON chat_messages (group_id, created_at DESC, id DESC);
`

type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Database = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to database", "driver", DriverPostgres)
	return &PostgresDB{pool: pool}, nil
}

// Migrate creates the tables if they do not exist yet.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// The no-op update makes RETURNING yield the existing row on conflict, so
// concurrent first touches of one name all resolve to the same group.
func (db *PostgresDB) GetOrCreateGroup(ctx context.Context, name string) (*models.Group, error) {
	query := `
		INSERT INTO chat_groups (name, created_at) VALUES ($1, NOW())
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`

	group := &models.Group{}
	err := db.pool.QueryRow(ctx, query, name).Scan(&group.ID, &group.Name, &group.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create group %q: %w", name, err)
	}
	return group, nil
}

func (db *PostgresDB) CreateMessage(ctx context.Context, author models.Author, groupID int64, content string) (*models.Message, error) {
	query := `
		INSERT INTO chat_messages (group_id, user_id, username, content, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`

	msg := &models.Message{
		GroupID:  groupID,
		UserID:   author.UserID,
		Username: author.Username,
		Content:  content,
	}
	err := db.pool.QueryRow(ctx, query, groupID, author.UserID, author.Username, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (db *PostgresDB) DeleteMessage(ctx context.Context, userID, messageID int64) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1 AND user_id = $2`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *PostgresDB) ListRecent(ctx context.Context, groupID int64, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.group_id, g.name, m.user_id, m.username, m.content, m.created_at
		FROM chat_messages m
		JOIN chat_groups g ON g.id = m.group_id
		WHERE m.group_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2`

	messages, err := db.queryMessages(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	// Oldest first for display
	slices.Reverse(messages)
	return messages, nil
}

func (db *PostgresDB) ListGroups(ctx context.Context) ([]*models.Group, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, created_at FROM chat_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// ListMessages lists messages by id across all groups, or one group when
// groupName is set.
func (db *PostgresDB) ListMessages(ctx context.Context, groupName string, limit int) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.group_id, g.name, m.user_id, m.username, m.content, m.created_at
		FROM chat_messages m
		JOIN chat_groups g ON g.id = m.group_id
		WHERE $1::text = '' OR g.name = $1
		ORDER BY m.id
		LIMIT $2`

	messages, err := db.queryMessages(ctx, query, groupName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (db *PostgresDB) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.GroupName, &msg.UserID, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
