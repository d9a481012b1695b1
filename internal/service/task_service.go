package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tasktrack/internal/model"
	"tasktrack/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Content string
	Tags    []TagRef
}

// TaskPatch lists the fields Update should change. Nil fields are left as they are.
type TaskPatch struct {
	Content   *string
	Tags      *[]TagRef
	Position  *int
	Completed *bool
}

// TaskFilter narrows List. TagIDs uses AND semantics.
type TaskFilter struct {
	TagIDs    []uuid.UUID
	Completed *bool
}

// CompletedDay groups tasks completed on one calendar day.
type CompletedDay struct {
	Date  time.Time    `json:"date"`
	Tasks []model.Task `json:"tasks"`
}

// TaskService maintains each owner's ordered task list.
type TaskService struct {
	db    *gorm.DB
	tasks *repository.TaskRepository
	tags  *TagService
	now   func() time.Time
}

func NewTaskService(db *gorm.DB, tasks *repository.TaskRepository, tags *TagService) *TaskService {
	return &TaskService{
		db:    db,
		tasks: tasks,
		tags:  tags,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// txScope holds the repositories bound to one transaction.
type txScope struct {
	tasks *repository.TaskRepository
	tags  *TagService
	now   func() time.Time
}

// inTx runs fn in a transaction holding the owner lock.
func (s *TaskService) inTx(ctx context.Context, ownerID uint, fn func(sc txScope) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := txScope{tasks: s.tasks.WithTx(tx), tags: s.tags.withTx(tx), now: s.now}
		if err := sc.tasks.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		return fn(sc)
	})
}

func (s *TaskService) Create(ctx context.Context, ownerID uint, input TaskInput) (*model.Task, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var task model.Task
	err := s.inTx(ctx, ownerID, func(sc txScope) error {
		position, err := sc.tasks.NextPosition(ctx, ownerID)
		if err != nil {
			return err
		}
		task = model.Task{UserID: ownerID, Content: content, Position: position}
		if err := sc.tasks.Create(ctx, &task); err != nil {
			return err
		}
		tags, err := sc.tags.reconcileTask(ctx, &task, input.Tags)
		if err != nil {
			return err
		}
		task.Tags = tags
		return nil
	})
	if err != nil {
		return nil, storeErr("create task", err)
	}
	return &task, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID uint, taskID uuid.UUID) (*model.Task, error) {
	task, err := ownedTask(ctx, s.tasks, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.tags.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, storeErr("get task", err)
	}
	task.Tags = nonNilTags(tags)
	return task, nil
}

// AtPosition returns the owner's task at a zero-based position.
func (s *TaskService) AtPosition(ctx context.Context, ownerID uint, position int) (*model.Task, error) {
	task, err := s.tasks.FindByPosition(ctx, ownerID, position)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("position %d: %w", position, ErrNotFound)
		}
		return nil, storeErr("find task", err)
	}
	tags, err := s.tags.tags.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, storeErr("find task", err)
	}
	task.Tags = nonNilTags(tags)
	return task, nil
}

// List returns the owner's tasks ordered by position, each with its tags.
func (s *TaskService) List(ctx context.Context, ownerID uint, filter TaskFilter) ([]model.Task, error) {
	tasks, err := s.tasks.ListByUser(ctx, ownerID, repository.TaskQuery{
		TagIDs:    filter.TagIDs,
		Completed: filter.Completed,
	})
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	if err := s.attachTags(ctx, tasks); err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// CompletedByDay groups the owner's completed tasks by the day of completion in loc.
// Days and the tasks inside them are ordered newest first.
func (s *TaskService) CompletedByDay(ctx context.Context, ownerID uint, loc *time.Location) ([]CompletedDay, error) {
	if loc == nil {
		loc = time.UTC
	}
	tasks, err := s.tasks.ListCompleted(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list completed tasks", err)
	}
	if err := s.attachTags(ctx, tasks); err != nil {
		return nil, storeErr("list completed tasks", err)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return completionTime(tasks[i]).After(completionTime(tasks[j]))
	})

	days := make([]CompletedDay, 0)
	for _, task := range tasks {
		at := completionTime(task).In(loc)
		date := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, loc)
		if n := len(days); n > 0 && days[n-1].Date.Equal(date) {
			days[n-1].Tasks = append(days[n-1].Tasks, task)
			continue
		}
		days = append(days, CompletedDay{Date: date, Tasks: []model.Task{task}})
	}
	return days, nil
}

func (s *TaskService) Move(ctx context.Context, ownerID uint, taskID uuid.UUID, newPosition int) (*model.Task, error) {
	return s.mutate(ctx, ownerID, taskID, "move task", func(sc txScope, task *model.Task) error {
		return sc.move(ctx, task, newPosition)
	})
}

func (s *TaskService) Complete(ctx context.Context, ownerID uint, taskID uuid.UUID) (*model.Task, error) {
	return s.mutate(ctx, ownerID, taskID, "complete task", func(sc txScope, task *model.Task) error {
		return sc.setCompleted(ctx, task, true)
	})
}

func (s *TaskService) Uncomplete(ctx context.Context, ownerID uint, taskID uuid.UUID) (*model.Task, error) {
	return s.mutate(ctx, ownerID, taskID, "uncomplete task", func(sc txScope, task *model.Task) error {
		return sc.setCompleted(ctx, task, false)
	})
}

// Update applies every field of patch in one transaction. Either all of them apply or none.
func (s *TaskService) Update(ctx context.Context, ownerID uint, taskID uuid.UUID, patch TaskPatch) (*model.Task, error) {
	var content string
	if patch.Content != nil {
		content = strings.TrimSpace(*patch.Content)
		if content == "" {
			return nil, ErrEmptyContent
		}
	}

	return s.mutate(ctx, ownerID, taskID, "update task", func(sc txScope, task *model.Task) error {
		if patch.Content != nil && content != task.Content {
			if err := sc.tasks.SetContent(ctx, task.ID, content); err != nil {
				return err
			}
			task.Content = content
		}
		if patch.Tags != nil {
			if _, err := sc.tags.reconcileTask(ctx, task, *patch.Tags); err != nil {
				return err
			}
		}
		if patch.Position != nil {
			if err := sc.move(ctx, task, *patch.Position); err != nil {
				return err
			}
		}
		if patch.Completed != nil {
			if err := sc.setCompleted(ctx, task, *patch.Completed); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the task and its links, then closes the position gap it leaves.
func (s *TaskService) Delete(ctx context.Context, ownerID uint, taskID uuid.UUID) error {
	err := s.inTx(ctx, ownerID, func(sc txScope) error {
		task, err := ownedTask(ctx, sc.tasks, ownerID, taskID)
		if err != nil {
			return err
		}
		if err := sc.tasks.Delete(ctx, ownerID, task.ID); err != nil {
			return err
		}
		return sc.tasks.CloseGap(ctx, ownerID, task.Position)
	})
	return storeErr("delete task", err)
}

// mutate loads and verifies the task under the owner lock, applies fn and
// returns the task as stored afterwards.
func (s *TaskService) mutate(ctx context.Context, ownerID uint, taskID uuid.UUID, op string, fn func(sc txScope, task *model.Task) error) (*model.Task, error) {
	var out *model.Task
	err := s.inTx(ctx, ownerID, func(sc txScope) error {
		task, err := ownedTask(ctx, sc.tasks, ownerID, taskID)
		if err != nil {
			return err
		}
		if err := fn(sc, task); err != nil {
			return err
		}
		out, err = sc.load(ctx, task.ID)
		return err
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

func (sc txScope) move(ctx context.Context, task *model.Task, newPosition int) error {
	next, err := sc.tasks.NextPosition(ctx, task.UserID)
	if err != nil {
		return err
	}
	if newPosition < 0 || newPosition > next-1 {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidPosition, newPosition, next-1)
	}

	old := task.Position
	switch {
	case newPosition > old:
		err = sc.tasks.ShiftRange(ctx, task.UserID, old+1, newPosition, -1, task.ID)
	case newPosition < old:
		err = sc.tasks.ShiftRange(ctx, task.UserID, newPosition, old-1, 1, task.ID)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if err := sc.tasks.SetPosition(ctx, task.ID, newPosition); err != nil {
		return err
	}
	task.Position = newPosition
	return nil
}

// setCompleted is a no-op when the task is already in the requested state,
// so re-completing keeps the original completion time.
func (sc txScope) setCompleted(ctx context.Context, task *model.Task, completed bool) error {
	if task.Completed == completed {
		return nil
	}
	var at *time.Time
	if completed {
		now := sc.now()
		at = &now
	}
	if err := sc.tasks.SetCompletion(ctx, task.ID, at); err != nil {
		return err
	}
	task.Completed = completed
	task.CompletedAt = at
	return nil
}

func (sc txScope) load(ctx context.Context, taskID uuid.UUID) (*model.Task, error) {
	task, err := sc.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("reload task: %w", err)
	}
	tags, err := sc.tags.tags.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	task.Tags = nonNilTags(tags)
	return task, nil
}

func (s *TaskService) attachTags(ctx context.Context, tasks []model.Task) error {
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	byTask, err := s.tags.tags.ListByTasks(ctx, ids)
	if err != nil {
		return err
	}
	for i := range tasks {
		tasks[i].Tags = nonNilTags(byTask[tasks[i].ID])
	}
	return nil
}

// ownedTask loads a task and checks it belongs to ownerID.
func ownedTask(ctx context.Context, tasks *repository.TaskRepository, ownerID uint, taskID uuid.UUID) (*model.Task, error) {
	task, err := tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return nil, storeErr("find task", err)
	}
	if task.UserID != ownerID {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrForbidden)
	}
	return task, nil
}

func completionTime(task model.Task) time.Time {
	if task.CompletedAt != nil {
		return *task.CompletedAt
	}
	return task.UpdatedAt
}
