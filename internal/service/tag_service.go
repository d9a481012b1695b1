package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tasktrack/internal/model"
	"tasktrack/internal/repository"
)

// createOrGetAttempts bounds the insert-then-fetch loop when a concurrent
// delete removes the conflicting row between the two statements.
const createOrGetAttempts = 3

// TagRef names a requested tag either by id or by name. ID wins when set.
type TagRef struct {
	ID   uuid.UUID
	Name string
}

// TagNames builds refs from plain names.
func TagNames(names ...string) []TagRef {
	refs := make([]TagRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, TagRef{Name: name})
	}
	return refs
}

// TagService owns the per-user tag vocabulary and the links between tags and tasks.
type TagService struct {
	db    *gorm.DB
	tags  *repository.TagRepository
	tasks *repository.TaskRepository
}

func NewTagService(db *gorm.DB, tags *repository.TagRepository, tasks *repository.TaskRepository) *TagService {
	return &TagService{db: db, tags: tags, tasks: tasks}
}

func (s *TagService) withTx(tx *gorm.DB) *TagService {
	return &TagService{db: tx, tags: s.tags.WithTx(tx), tasks: s.tasks.WithTx(tx)}
}

// CreateOrGet returns the owner's tag with the given name, creating it if needed.
func (s *TagService) CreateOrGet(ctx context.Context, ownerID uint, name string) (*model.Tag, error) {
	name = normalizeTagName(name)
	if name == "" {
		return nil, ErrEmptyTagName
	}
	tag, err := s.createOrGet(ctx, ownerID, name)
	if err != nil {
		return nil, storeErr("create tag", err)
	}
	return tag, nil
}

func (s *TagService) createOrGet(ctx context.Context, ownerID uint, name string) (*model.Tag, error) {
	var lastErr error
	for attempt := 0; attempt < createOrGetAttempts; attempt++ {
		candidate := model.Tag{UserID: ownerID, Name: name}
		inserted, err := s.tags.InsertIfAbsent(ctx, &candidate)
		// ON CONFLICT normally absorbs the clash; a store that still reports
		// a duplicate key is treated like a skipped insert.
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		if inserted {
			return &candidate, nil
		}

		existing, err := s.tags.FindByName(ctx, ownerID, name)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find tag: %w", err)
		}
		lastErr = fmt.Errorf("tag %q removed concurrently", name)
	}
	return nil, lastErr
}

// Find returns the owner's tag with the given name.
func (s *TagService) Find(ctx context.Context, ownerID uint, name string) (*model.Tag, error) {
	tag, err := s.tags.FindByName(ctx, ownerID, normalizeTagName(name))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tag %q: %w", name, ErrNotFound)
		}
		return nil, storeErr("find tag", err)
	}
	return tag, nil
}

// Link attaches tag to the task. The task must belong to the tag's owner.
func (s *TagService) Link(ctx context.Context, tag model.Tag, taskID uuid.UUID) error {
	if _, err := ownedTask(ctx, s.tasks, tag.UserID, taskID); err != nil {
		return err
	}
	return storeErr("link tag", s.tags.Link(ctx, taskID, tag.ID))
}

// Unlink detaches a tag from the owner's task. Missing links are ignored.
func (s *TagService) Unlink(ctx context.Context, ownerID uint, taskID, tagID uuid.UUID) error {
	if _, err := ownedTask(ctx, s.tasks, ownerID, taskID); err != nil {
		return err
	}
	return storeErr("unlink tag", s.tags.Unlink(ctx, taskID, tagID))
}

// Reconcile makes the task's links match requested exactly and returns the resulting tags.
func (s *TagService) Reconcile(ctx context.Context, ownerID uint, taskID uuid.UUID, requested []TagRef) ([]model.Tag, error) {
	var result []model.Tag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := s.withTx(tx)
		task, err := ownedTask(ctx, scoped.tasks, ownerID, taskID)
		if err != nil {
			return err
		}
		result, err = scoped.reconcileTask(ctx, task, requested)
		return err
	})
	if err != nil {
		return nil, storeErr("reconcile tags", err)
	}
	return result, nil
}

// reconcileTask assumes the task has already been checked against its owner.
func (s *TagService) reconcileTask(ctx context.Context, task *model.Task, requested []TagRef) ([]model.Tag, error) {
	desired, err := s.resolve(ctx, task.UserID, requested)
	if err != nil {
		return nil, err
	}
	current, err := s.tags.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	currentIDs := make(map[uuid.UUID]struct{}, len(current))
	for _, tag := range current {
		currentIDs[tag.ID] = struct{}{}
	}
	desiredIDs := make(map[uuid.UUID]struct{}, len(desired))
	for _, tag := range desired {
		desiredIDs[tag.ID] = struct{}{}
	}

	for _, tag := range desired {
		if _, ok := currentIDs[tag.ID]; ok {
			continue
		}
		if err := s.tags.Link(ctx, task.ID, tag.ID); err != nil {
			return nil, err
		}
	}
	for _, tag := range current {
		if _, ok := desiredIDs[tag.ID]; ok {
			continue
		}
		if err := s.tags.Unlink(ctx, task.ID, tag.ID); err != nil {
			return nil, err
		}
	}

	tags, err := s.tags.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return nonNilTags(tags), nil
}

// resolve maps refs to the owner's tags, creating named ones on first use.
// Duplicates and blank names are dropped.
func (s *TagService) resolve(ctx context.Context, ownerID uint, refs []TagRef) ([]model.Tag, error) {
	out := make([]model.Tag, 0, len(refs))
	seen := make(map[uuid.UUID]struct{}, len(refs))
	for _, ref := range refs {
		var (
			tag *model.Tag
			err error
		)
		if ref.ID != uuid.Nil {
			tag, err = s.ownedTag(ctx, ownerID, ref.ID)
		} else {
			name := normalizeTagName(ref.Name)
			if name == "" {
				continue
			}
			tag, err = s.createOrGet(ctx, ownerID, name)
		}
		if err != nil {
			return nil, err
		}
		if _, dup := seen[tag.ID]; dup {
			continue
		}
		seen[tag.ID] = struct{}{}
		out = append(out, *tag)
	}
	return out, nil
}

func (s *TagService) ownedTag(ctx context.Context, ownerID uint, tagID uuid.UUID) (*model.Tag, error) {
	tag, err := s.tags.FindByID(ctx, tagID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
		}
		return nil, fmt.Errorf("find tag: %w", err)
	}
	if tag.UserID != ownerID {
		return nil, fmt.Errorf("tag %s: %w", tagID, ErrForbidden)
	}
	return tag, nil
}

// ListByUser returns all tags of the owner sorted by name.
func (s *TagService) ListByUser(ctx context.Context, ownerID uint) ([]model.Tag, error) {
	tags, err := s.tags.ListByUser(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list tags", err)
	}
	return nonNilTags(tags), nil
}

// Remove deletes the owner's tag and all of its links.
// It returns false when the tag does not exist or belongs to someone else.
func (s *TagService) Remove(ctx context.Context, ownerID uint, tagID uuid.UUID) (bool, error) {
	var removed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = s.tags.WithTx(tx).Delete(ctx, ownerID, tagID)
		return err
	})
	if err != nil {
		return false, storeErr("remove tag", err)
	}
	return removed, nil
}

func normalizeTagName(name string) string {
	return strings.TrimSpace(name)
}

func nonNilTags(tags []model.Tag) []model.Tag {
	if tags == nil {
		return []model.Tag{}
	}
	return tags
}
