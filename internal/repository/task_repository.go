package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tasktrack/internal/model"
)

// TaskQuery narrows ListByUser. Zero value returns every task of the owner.
type TaskQuery struct {
	// TagIDs keeps only tasks linked to every listed tag.
	TagIDs    []uuid.UUID
	Completed *bool
}

// TaskRepository handles CRUD and position maintenance for tasks.
// Every query is scoped by owner except FindByID, which callers use to tell
// a missing task from a foreign one.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

// LockOwner takes a row lock on the owner for the rest of the transaction.
// SQLite has no row locks; there the single connection already serialises writers.
func (r *TaskRepository) LockOwner(ctx context.Context, ownerID uint) error {
	var owner model.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", ownerID).
		Limit(1).
		Find(&owner).Error
	if err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// FindByID loads a task regardless of owner. Returns gorm.ErrRecordNotFound when absent.
func (r *TaskRepository) FindByID(ctx context.Context, taskID uuid.UUID) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) FindByPosition(ctx context.Context, ownerID uint, position int) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND position = ?", ownerID, position).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// NextPosition returns max(position)+1 for the owner, or 0 when the owner has no tasks.
func (r *TaskRepository) NextPosition(ctx context.Context, ownerID uint) (int, error) {
	var maxPos int
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ?", ownerID).
		Select("COALESCE(MAX(position), -1)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}
	return maxPos + 1, nil
}

// ShiftRange adds delta to the position of every task of the owner with
// from <= position <= to, except the task identified by skip.
func (r *TaskRepository) ShiftRange(ctx context.Context, ownerID uint, from, to, delta int, skip uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND position >= ? AND position <= ? AND id <> ?", ownerID, from, to, skip).
		UpdateColumn("position", gorm.Expr("position + ?", delta)).Error
	if err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}
	return nil
}

// CloseGap decrements every position after the given one.
func (r *TaskRepository) CloseGap(ctx context.Context, ownerID uint, after int) error {
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND position > ?", ownerID, after).
		UpdateColumn("position", gorm.Expr("position - 1")).Error
	if err != nil {
		return fmt.Errorf("close position gap: %w", err)
	}
	return nil
}

func (r *TaskRepository) SetPosition(ctx context.Context, taskID uuid.UUID, position int) error {
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", taskID).
		Update("position", position).Error
	if err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return nil
}

func (r *TaskRepository) SetContent(ctx context.Context, taskID uuid.UUID, content string) error {
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", taskID).
		Update("content", content).Error
	if err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	return nil
}

// SetCompletion sets completed and completed_at together; a nil time clears both.
func (r *TaskRepository) SetCompletion(ctx context.Context, taskID uuid.UUID, completedAt *time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"completed":    completedAt != nil,
			"completed_at": completedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("set completion: %w", err)
	}
	return nil
}

// Delete removes a task of the owner together with its tag links.
func (r *TaskRepository) Delete(ctx context.Context, ownerID uint, taskID uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("task_id = ?", taskID).Delete(&model.TagLink{}).Error; err != nil {
		return fmt.Errorf("delete task links: %w", err)
	}
	if err := db.Where("user_id = ? AND id = ?", ownerID, taskID).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListByUser returns the owner's tasks ordered by position.
func (r *TaskRepository) ListByUser(ctx context.Context, ownerID uint, q TaskQuery) ([]model.Task, error) {
	db := r.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if q.Completed != nil {
		db = db.Where("completed = ?", *q.Completed)
	}
	if ids := uniqueIDs(q.TagIDs); len(ids) > 0 {
		tagged := r.db.WithContext(ctx).Model(&model.TagLink{}).
			Select("task_id").
			Where("tag_id IN ?", ids).
			Group("task_id").
			Having("COUNT(DISTINCT tag_id) = ?", len(ids))
		db = db.Where("id IN (?)", tagged)
	}

	var tasks []model.Task
	if err := db.Order("position ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListCompleted returns the owner's completed tasks, most recent completion first.
func (r *TaskRepository) ListCompleted(ctx context.Context, ownerID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND completed = ?", ownerID, true).
		Order("completed_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list completed tasks: %w", err)
	}
	return tasks, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
