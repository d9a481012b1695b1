package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"tasktrack/internal/model"
)

// SummaryService builds human-readable summaries for scheduled notifications.
type SummaryService struct {
	tasks *TaskService
}

func NewSummaryService(tasks *TaskService) *SummaryService {
	return &SummaryService{tasks: tasks}
}

// DailySummary lists the user's open tasks in order and what was completed on now's day.
func (s *SummaryService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	open := false
	pending, err := s.tasks.List(ctx, user.ID, TaskFilter{Completed: &open})
	if err != nil {
		return "", err
	}
	days, err := s.tasks.CompletedByDay(ctx, user.ID, now.Location())
	if err != nil {
		return "", err
	}

	var doneToday []model.Task
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, day := range days {
		if day.Date.Equal(today) {
			doneToday = day.Tasks
			break
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily summary</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	builder.WriteString("🔥 <b>Open tasks</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— nothing open\n")
	} else {
		for _, task := range pending {
			builder.WriteString(FormatTaskLine(task))
		}
	}

	builder.WriteString("\n✅ <b>Done today</b>\n")
	if len(doneToday) == 0 {
		builder.WriteString("— nothing yet\n")
	} else {
		for _, task := range doneToday {
			builder.WriteString(fmt.Sprintf("✔️ %s\n", html.EscapeString(task.Content)))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// FormatTaskLine renders one task as a numbered HTML line. Numbers are one-based positions.
func FormatTaskLine(task model.Task) string {
	var sb strings.Builder

	icon := "🟢"
	if task.Completed {
		icon = "✔️"
	}
	sb.WriteString(fmt.Sprintf("%d. %s %s", task.Position+1, icon, html.EscapeString(strings.TrimSpace(task.Content))))

	if len(task.Tags) > 0 {
		names := make([]string, 0, len(task.Tags))
		for _, tag := range task.Tags {
			names = append(names, "#"+html.EscapeString(tag.Name))
		}
		sb.WriteString(fmt.Sprintf(" <i>%s</i>", strings.Join(names, " ")))
	}

	sb.WriteByte('\n')
	return sb.String()
}
