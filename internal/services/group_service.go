package services

import (
	"context"
	"fmt"

	"chat-relay/internal/database"
	"chat-relay/internal/models"
)

// DefaultHistoryLimit is the number of messages shown on a group page.
const DefaultHistoryLimit = 50

// MemberCounter reports live sessions per group. *websocket.Registry satisfies it.
type MemberCounter interface {
	Count(group string) int
}

type GroupService struct {
	db           database.Database
	members      MemberCounter
	historyLimit int
}

func NewGroupService(db database.Database, members MemberCounter, historyLimit int) *GroupService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &GroupService{db: db, members: members, historyLimit: historyLimit}
}

// Page resolves the group, creating it on first visit, and returns its most
// recent messages oldest first.
func (s *GroupService) Page(ctx context.Context, name string) (*models.GroupPage, error) {
	if err := models.ValidateGroupName(name); err != nil {
		return nil, err
	}

	group, err := s.db.GetOrCreateGroup(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", name, err)
	}

	messages, err := s.db.ListRecent(ctx, group.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages for %q: %w", name, err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	return &models.GroupPage{Group: group, Messages: messages}, nil
}

func (s *GroupService) Active(name string) (*models.ActiveCount, error) {
	if err := models.ValidateGroupName(name); err != nil {
		return nil, err
	}
	return &models.ActiveCount{Group: name, Sessions: s.members.Count(name)}, nil
}

func (s *GroupService) ListGroups(ctx context.Context) ([]*models.Group, error) {
	return s.db.ListGroups(ctx)
}

func (s *GroupService) ListMessages(ctx context.Context, group string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.db.ListMessages(ctx, group, limit)
}
