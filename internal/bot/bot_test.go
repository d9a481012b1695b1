package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tasktrack/internal/model"
	"tasktrack/internal/repository"
	"tasktrack/internal/service"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	answers []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answers = append(f.answers, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

type harness struct {
	bot   *Bot
	out   *fakeSender
	tasks *service.TaskService
	users *repository.UserRepository
	from  *tgbotapi.User
	chat  *tgbotapi.Chat
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB("sqlite", filepath.Join(t.TempDir(), "bot.db"), false)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	taskRepo := repository.NewTaskRepository(db)
	tags := service.NewTagService(db, repository.NewTagRepository(db), taskRepo)
	tasks := service.NewTaskService(db, taskRepo, tags)
	users := repository.NewUserRepository(db)
	out := &fakeSender{}
	b := newBot(out, users, tasks, tags, service.NewSummaryService(tasks), 10*time.Second)
	b.loc = time.UTC

	return &harness{
		bot:   b,
		out:   out,
		tasks: tasks,
		users: users,
		from:  &tgbotapi.User{ID: 1001, FirstName: "Ann"},
		chat:  &tgbotapi.Chat{ID: 1001, Type: "private"},
	}
}

func (h *harness) say(t *testing.T, text string) string {
	t.Helper()
	msg := &tgbotapi.Message{From: h.from, Chat: h.chat, Text: text}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			end = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
	return h.out.last(t).Text
}

func (h *harness) tap(t *testing.T, data string) {
	t.Helper()
	cb := &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    h.from,
		Message: &tgbotapi.Message{Chat: h.chat},
		Data:    data,
	}
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})
}

func (h *harness) list(t *testing.T) []model.Task {
	t.Helper()
	user, err := h.users.UpsertFromTelegram(context.Background(), h.from.ID, h.from.FirstName, "", "")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	tasks, err := h.tasks.List(context.Background(), user.ID, service.TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return tasks
}

func contents(tasks []model.Task) string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Content)
	}
	return strings.Join(out, ",")
}

func TestNewTaskInline(t *testing.T) {
	h := newHarness(t)
	reply := h.say(t, "/new Buy milk #home #errands")
	if !strings.Contains(reply, "Added as <b>1</b>: Buy milk") || !strings.Contains(reply, "#errands #home") {
		t.Fatalf("unexpected reply %q", reply)
	}
	tasks := h.list(t)
	if len(tasks) != 1 || len(tasks[0].Tags) != 2 {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestNewTaskConversation(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new")
	if reply := h.say(t, "Call the bank"); !strings.Contains(reply, "Step 2") {
		t.Fatalf("expected tag step, got %q", reply)
	}
	h.say(t, "#money, urgent")

	tasks := h.list(t)
	if len(tasks) != 1 || tasks[0].Content != "Call the bank" || len(tasks[0].Tags) != 2 {
		t.Fatalf("tasks = %+v", tasks)
	}
	if h.bot.hasConversation(h.from.ID) {
		t.Fatal("conversation should be finished")
	}
}

func TestNewTaskConversationCancel(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new")
	h.say(t, btnCancelDialog)
	if h.bot.hasConversation(h.from.ID) {
		t.Fatal("conversation should be cleared")
	}
	if tasks := h.list(t); len(tasks) != 0 {
		t.Fatalf("cancel created tasks: %+v", tasks)
	}
}

func TestMoveCommand(t *testing.T) {
	h := newHarness(t)
	for _, c := range []string{"A", "B", "C", "D"} {
		h.say(t, "/new "+c)
	}
	h.say(t, "/move 1 3")
	if got := contents(h.list(t)); got != "B,C,A,D" {
		t.Fatalf("order = %s", got)
	}
	if reply := h.say(t, "/move 1 9"); !strings.Contains(reply, "no task with that number") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if reply := h.say(t, "/move 0 1"); !strings.Contains(reply, "Usage") {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestDoneAndUndoWindow(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new Water plants")

	start := time.Now().UTC()
	h.bot.now = func() time.Time { return start }
	h.say(t, "/done 1")
	last := h.out.last(t)
	kb, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 {
		t.Fatalf("expected an undo button, got %#v", last.ReplyMarkup)
	}
	undoData := *kb.InlineKeyboard[0][0].CallbackData

	h.bot.now = func() time.Time { return start.Add(time.Hour) }
	h.tap(t, undoData)
	if !h.list(t)[0].Completed {
		t.Fatal("undo after the window must be refused")
	}

	h.bot.now = func() time.Time { return time.Now().UTC() }
	h.say(t, "/undo 1")
	if h.list(t)[0].Completed {
		t.Fatal("/undo must reopen the task")
	}

	h.say(t, "/done 1")
	h.tap(t, undoData)
	if h.list(t)[0].Completed {
		t.Fatal("undo inside the window must reopen the task")
	}
}

func TestTagCommand(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new Report #work")
	if reply := h.say(t, "/tag 1 #urgent #work"); !strings.Contains(reply, "#urgent #work") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if reply := h.say(t, "/tag 1"); !strings.Contains(reply, "cleared") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if tags := h.list(t)[0].Tags; len(tags) != 0 {
		t.Fatalf("tags = %+v", tags)
	}
}

func TestListByTag(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new A #work")
	h.say(t, "/new B #home")
	reply := h.say(t, "/tasks #work")
	if !strings.Contains(reply, "A") || strings.Contains(reply, "B") {
		t.Fatalf("unexpected list %q", reply)
	}
	if reply := h.say(t, "/tasks #nope"); !strings.Contains(reply, "no tag #nope") {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new A")
	h.say(t, "/new B")

	h.say(t, "/delete 1")
	h.say(t, btnCancel)
	if got := contents(h.list(t)); got != "A,B" {
		t.Fatalf("cancelled delete removed a task: %s", got)
	}

	h.say(t, "/delete 1")
	h.say(t, btnConfirm)
	tasks := h.list(t)
	if contents(tasks) != "B" || tasks[0].Position != 0 {
		t.Fatalf("after delete: %+v", tasks)
	}
}

func TestDeleteTagCommand(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new A #work")
	if reply := h.say(t, "/deltag work"); !strings.Contains(reply, "deleted") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if reply := h.say(t, "/tags"); !strings.Contains(reply, "No tags") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if tasks := h.list(t); len(tasks) != 1 || len(tasks[0].Tags) != 0 {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestHistoryAndReport(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new A")
	h.say(t, "/new B")
	h.say(t, "/done 2")

	if reply := h.say(t, "/history"); !strings.Contains(reply, "✔️ B") {
		t.Fatalf("unexpected history %q", reply)
	}
	reply := h.say(t, "/report")
	if !strings.Contains(reply, "1. 🟢 A") || !strings.Contains(reply, "✔️ B") {
		t.Fatalf("unexpected report %q", reply)
	}
}

func TestSendDailyReports(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/new A")
	before := len(h.out.sent)
	if err := h.bot.SendDailyReports(context.Background()); err != nil {
		t.Fatalf("SendDailyReports: %v", err)
	}
	if len(h.out.sent) != before+1 {
		t.Fatalf("sent %d reports, want 1", len(h.out.sent)-before)
	}
	if got := h.out.last(t).ChatID; got != h.from.ID {
		t.Fatalf("report went to %d", got)
	}
}
