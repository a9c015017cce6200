package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Author is the authenticated user a persisted message belongs to.
type Author struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type Message struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	GroupName string    `json:"group_name,omitempty"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupPage is the read-side view of a group: its name and recent history.
type GroupPage struct {
	Group    *Group     `json:"group"`
	Messages []*Message `json:"messages"`
}

type ActiveCount struct {
	Group    string `json:"group"`
	Sessions int    `json:"sessions"`
}

const MaxGroupNameLength = 100

var ErrInvalidGroupName = errors.New("invalid group name")

// ValidateGroupName accepts 1 to MaxGroupNameLength characters without slashes.
func ValidateGroupName(name string) error {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > MaxGroupNameLength || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidGroupName, name)
	}
	return nil
}
