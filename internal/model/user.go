package model

import "time"

// User owns tasks and tags. Web users sign in by email; chat users are keyed by TelegramID.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        *string   `gorm:"uniqueIndex" json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	TelegramID   *int64    `gorm:"uniqueIndex" json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Username     string    `json:"username,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
