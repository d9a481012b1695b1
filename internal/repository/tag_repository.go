package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tasktrack/internal/model"
)

// TagRepository manages the per-user tag vocabulary and task links.
type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TagRepository) WithTx(tx *gorm.DB) *TagRepository {
	return &TagRepository{db: tx}
}

// InsertIfAbsent inserts the tag unless (user_id, name) already exists.
// It reports whether a row was written; on false the caller must fetch the existing tag.
func (r *TagRepository) InsertIfAbsent(ctx context.Context, tag *model.Tag) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(tag)
	if res.Error != nil {
		return false, fmt.Errorf("insert tag: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *TagRepository) FindByName(ctx context.Context, userID uint, name string) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// FindByID loads a tag regardless of owner. Returns gorm.ErrRecordNotFound when absent.
func (r *TagRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *TagRepository) ListByUser(ctx context.Context, userID uint) ([]model.Tag, error) {
	var tags []model.Tag
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// ListByTask returns the tags linked to a task, sorted by name.
func (r *TagRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]model.Tag, error) {
	var tags []model.Tag
	if err := r.db.WithContext(ctx).
		Joins("JOIN tag_links ON tag_links.tag_id = tags.id").
		Where("tag_links.task_id = ?", taskID).
		Order("tags.name ASC").
		Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list task tags: %w", err)
	}
	return tags, nil
}

type taskTagRow struct {
	model.Tag
	TaskID uuid.UUID
}

// ListByTasks returns the tags of several tasks keyed by task id.
func (r *TagRepository) ListByTasks(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]model.Tag, error) {
	out := make(map[uuid.UUID][]model.Tag, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}

	var rows []taskTagRow
	if err := r.db.WithContext(ctx).
		Table("tags").
		Select("tags.id, tags.user_id, tags.name, tags.created_at, tag_links.task_id").
		Joins("JOIN tag_links ON tag_links.tag_id = tags.id").
		Where("tag_links.task_id IN ?", taskIDs).
		Order("tags.name ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tags for tasks: %w", err)
	}
	for _, row := range rows {
		out[row.TaskID] = append(out[row.TaskID], row.Tag)
	}
	return out, nil
}

// Link attaches a tag to a task. Linking twice is a no-op.
func (r *TagRepository) Link(ctx context.Context, taskID, tagID uuid.UUID) error {
	link := model.TagLink{TaskID: taskID, TagID: tagID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error; err != nil {
		return fmt.Errorf("link tag: %w", err)
	}
	return nil
}

// Unlink detaches a tag from a task if linked.
func (r *TagRepository) Unlink(ctx context.Context, taskID, tagID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND tag_id = ?", taskID, tagID).
		Delete(&model.TagLink{}).Error; err != nil {
		return fmt.Errorf("unlink tag: %w", err)
	}
	return nil
}

// Delete removes a tag owned by userID together with its links.
// It reports whether the tag existed for that user.
func (r *TagRepository) Delete(ctx context.Context, userID uint, tagID uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Where("user_id = ? AND id = ?", userID, tagID).Delete(&model.Tag{})
	if res.Error != nil {
		return false, fmt.Errorf("delete tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := db.Where("tag_id = ?", tagID).Delete(&model.TagLink{}).Error; err != nil {
		return false, fmt.Errorf("delete tag links: %w", err)
	}
	return true, nil
}
