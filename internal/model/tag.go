package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tag is a label from a user's vocabulary. Names are unique per user.
type Tag struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_tags_user_name,priority:1" json:"user_id"`
	Name      string    `gorm:"not null;uniqueIndex:idx_tags_user_name,priority:2" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TagLink attaches a tag to a task. The composite key keeps each pair unique.
type TagLink struct {
	TaskID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	TagID     uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time
}

func (TagLink) TableName() string {
	return "tag_links"
}
