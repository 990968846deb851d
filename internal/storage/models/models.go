package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type User struct {
	ID               string
	ExternalID       string
	ActiveMembership bool
	CreatedAt        time.Time
}

type Document struct {
	ID          string
	UserID      string
	Name        string
	StoragePath string
	SizeBytes   int64
	ContentType string
	CreatedAt   time.Time
}

type ChatMessage struct {
	ID         string
	UserID     string
	DocumentID string
	Role       string
	Content    string
	CreatedAt  time.Time
}
