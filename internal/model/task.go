package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task is a single entry in an owner's ordered list.
// Positions of one owner's tasks always cover 0..n-1.
type Task struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index:idx_tasks_user_position,priority:1" json:"user_id"`
	Content     string     `gorm:"not null" json:"content"`
	Position    int        `gorm:"not null;index:idx_tasks_user_position,priority:2" json:"position"`
	Completed   bool       `gorm:"not null" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Tags []Tag `gorm:"-" json:"tags"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
