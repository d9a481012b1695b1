package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tasktrack/internal/model"
	"tasktrack/internal/repository"
)

type fixture struct {
	db    *gorm.DB
	tasks *TaskService
	tags  *TagService
	users *repository.UserRepository
	repo  *repository.TaskRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB("sqlite", filepath.Join(t.TempDir(), "tasks.db"), false)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	taskRepo := repository.NewTaskRepository(db)
	tagRepo := repository.NewTagRepository(db)
	tags := NewTagService(db, tagRepo, taskRepo)
	return &fixture{
		db:    db,
		tasks: NewTaskService(db, taskRepo, tags),
		tags:  tags,
		users: repository.NewUserRepository(db),
		repo:  taskRepo,
	}
}

func (f *fixture) user(t *testing.T, name string) uint {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", name)
	user := model.User{Email: &email, PasswordHash: "x"}
	if err := f.users.Create(context.Background(), &user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

func (f *fixture) create(t *testing.T, owner uint, content string, tags ...string) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), owner, TaskInput{Content: content, Tags: TagNames(tags...)})
	if err != nil {
		t.Fatalf("create %q: %v", content, err)
	}
	return task
}

// order returns task contents in position order and checks positions are dense.
func (f *fixture) order(t *testing.T, owner uint) []string {
	t.Helper()
	tasks, err := f.tasks.List(context.Background(), owner, TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make([]string, 0, len(tasks))
	for i, task := range tasks {
		if task.Position != i {
			t.Fatalf("positions not dense: task %q at %d, want %d", task.Content, task.Position, i)
		}
		out = append(out, task.Content)
	}
	return out
}

// links counts the rows joining task and tag.
func (f *fixture) links(t *testing.T, taskID, tagID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&model.TagLink{}).
		Where("task_id = ? AND tag_id = ?", taskID, tagID).
		Count(&n).Error; err != nil {
		t.Fatalf("count links: %v", err)
	}
	return n
}

func hasTag(task model.Task, tagID uuid.UUID) bool {
	for _, tag := range task.Tags {
		if tag.ID == tagID {
			return true
		}
	}
	return false
}

func tagNames(tags []model.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.Name)
	}
	return out
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
