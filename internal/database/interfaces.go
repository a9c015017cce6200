//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_database.go -package=mocks
package database

import (
	"context"
	"errors"

	"chat-relay/internal/models"
)

var ErrUnknownDriver = errors.New("unknown database driver")

type GroupRepository interface {
	// GetOrCreateGroup is an atomic insert-if-absent on the unique group name.
	GetOrCreateGroup(ctx context.Context, name string) (*models.Group, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, author models.Author, groupID int64, content string) (*models.Message, error)
	// DeleteMessage removes the message only when it exists and belongs to
	// userID. It reports false, without error, otherwise.
	DeleteMessage(ctx context.Context, userID, messageID int64) (bool, error)
	// ListRecent returns the newest limit messages of the group, oldest first.
	ListRecent(ctx context.Context, groupID int64, limit int) ([]*models.Message, error)
}

// AdminRepository backs the read-only operator listings.
type AdminRepository interface {
	ListGroups(ctx context.Context) ([]*models.Group, error)
	ListMessages(ctx context.Context, groupName string, limit int) ([]*models.Message, error)
}

type Database interface {
	GroupRepository
	MessageRepository
	AdminRepository
	Close() error
}
