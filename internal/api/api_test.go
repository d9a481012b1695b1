package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tasktrack/internal/auth"
	"tasktrack/internal/model"
	"tasktrack/internal/repository"
	"tasktrack/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
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
	tags := service.NewTagService(db, repository.NewTagRepository(db), taskRepo)
	tasks := service.NewTaskService(db, taskRepo, tags)
	authSvc := service.NewAuthService(repository.NewUserRepository(db), auth.NewTokenManager("test-secret", time.Hour))
	return NewRouter(NewHandler(authSvc, tasks, tags))
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func signUp(t *testing.T, r http.Handler, email string) string {
	t.Helper()
	creds := gin.H{"email": email, "password": "password123"}
	if w := do(t, r, http.MethodPost, "/register", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w := do(t, r, http.MethodPost, "/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func createTask(t *testing.T, r http.Handler, token, content string, tags ...string) model.Task {
	t.Helper()
	refs := make([]gin.H, 0, len(tags))
	for _, name := range tags {
		refs = append(refs, gin.H{"name": name})
	}
	w := do(t, r, http.MethodPost, "/api/tasks", token, gin.H{"content": content, "tags": refs})
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", w.Code, w.Body.String())
	}
	var task model.Task
	decode(t, w, &task)
	return task
}

func TestPing(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	r := newTestRouter(t)
	token := signUp(t, r, "Alice@Example.com")

	if w := do(t, r, http.MethodPost, "/register", "", gin.H{"email": "alice@example.com", "password": "password123"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate register: %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/register", "", gin.H{"email": "bob@example.com", "password": "short"}); w.Code != http.StatusBadRequest {
		t.Errorf("short password: %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/tasks", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/tasks", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/tasks", token, nil); w.Code != http.StatusOK {
		t.Errorf("valid token: %d %s", w.Code, w.Body.String())
	}
}

func TestTaskLifecycle(t *testing.T) {
	r := newTestRouter(t)
	token := signUp(t, r, "alice@example.com")

	a := createTask(t, r, token, "A", "work")
	createTask(t, r, token, "B")
	c := createTask(t, r, token, "C", "work")
	if a.Position != 0 || c.Position != 2 {
		t.Fatalf("positions = %d, %d", a.Position, c.Position)
	}

	w := do(t, r, http.MethodPost, "/api/tasks/"+a.ID.String()+"/move", token, gin.H{"position": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("move: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/api/tasks/"+a.ID.String()+"/move", token, gin.H{"position": 3}); w.Code != http.StatusBadRequest {
		t.Errorf("out of range move: %d", w.Code)
	}

	var tasks []model.Task
	decode(t, do(t, r, http.MethodGet, "/api/tasks", token, nil), &tasks)
	got := []string{}
	for _, task := range tasks {
		got = append(got, task.Content)
	}
	if len(got) != 3 || got[0] != "B" || got[1] != "C" || got[2] != "A" {
		t.Fatalf("order = %v", got)
	}

	work := tasks[2].Tags[0]
	decode(t, do(t, r, http.MethodGet, "/api/tasks?tag="+work.ID.String(), token, nil), &tasks)
	if len(tasks) != 2 {
		t.Errorf("tag filter returned %d tasks", len(tasks))
	}

	w = do(t, r, http.MethodPost, "/api/tasks/"+c.ID.String()+"/complete", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d", w.Code)
	}
	var done model.Task
	decode(t, w, &done)
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("not completed: %+v", done)
	}

	var days []completedDayOutput
	decode(t, do(t, r, http.MethodGet, "/api/tasks/completed", token, nil), &days)
	if len(days) != 1 || days[0].Count != 1 {
		t.Fatalf("completed view = %+v", days)
	}

	decode(t, do(t, r, http.MethodGet, "/api/tasks?completed=false", token, nil), &tasks)
	if len(tasks) != 2 {
		t.Errorf("open tasks = %d", len(tasks))
	}
	if w := do(t, r, http.MethodGet, "/api/tasks?completed=maybe", token, nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid completed filter: %d", w.Code)
	}

	w = do(t, r, http.MethodDelete, "/api/tasks/"+c.ID.String()+"/complete", token, nil)
	decode(t, w, &done)
	if done.Completed {
		t.Error("undo left task completed")
	}

	if w := do(t, r, http.MethodDelete, "/api/tasks/"+a.ID.String(), token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/tasks/"+a.ID.String(), token, nil); w.Code != http.StatusNotFound {
		t.Errorf("deleted task: %d", w.Code)
	}
}

func TestUpdateTask(t *testing.T) {
	r := newTestRouter(t)
	token := signUp(t, r, "alice@example.com")
	a := createTask(t, r, token, "A", "old")
	createTask(t, r, token, "B")

	w := do(t, r, http.MethodPut, "/api/tasks/"+a.ID.String(), token, gin.H{
		"content":   "A2",
		"tags":      []gin.H{{"name": "new"}},
		"position":  1,
		"completed": "true",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	var task model.Task
	decode(t, w, &task)
	if task.Content != "A2" || task.Position != 1 || !task.Completed || len(task.Tags) != 1 || task.Tags[0].Name != "new" {
		t.Fatalf("unexpected task %+v", task)
	}

	cases := []struct {
		name string
		body gin.H
	}{
		{name: "bad completion", body: gin.H{"completed": "yes please"}},
		{name: "bad position", body: gin.H{"position": -1}},
		{name: "empty content", body: gin.H{"content": "  "}},
		{name: "bad tag id", body: gin.H{"tags": []gin.H{{"id": "nope"}}}},
	}
	for _, tc := range cases {
		if w := do(t, r, http.MethodPut, "/api/tasks/"+a.ID.String(), token, tc.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: %d %s", tc.name, w.Code, w.Body.String())
		}
	}

	if w := do(t, r, http.MethodPut, "/api/tasks/not-a-uuid", token, gin.H{"content": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: %d", w.Code)
	}
}

func TestForeignTaskIsHidden(t *testing.T) {
	r := newTestRouter(t)
	alice := signUp(t, r, "alice@example.com")
	bob := signUp(t, r, "bob@example.com")
	task := createTask(t, r, alice, "private")

	path := "/api/tasks/" + task.ID.String()
	checks := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, path, nil},
		{http.MethodPut, path, gin.H{"content": "stolen"}},
		{http.MethodDelete, path, nil},
		{http.MethodPost, path + "/move", gin.H{"position": 0}},
		{http.MethodPost, path + "/complete", nil},
	}
	for _, check := range checks {
		if w := do(t, r, check.method, check.path, bob, check.body); w.Code != http.StatusNotFound {
			t.Errorf("%s %s: %d", check.method, check.path, w.Code)
		}
	}
}

func TestTags(t *testing.T) {
	r := newTestRouter(t)
	token := signUp(t, r, "alice@example.com")

	var first, second model.Tag
	decode(t, do(t, r, http.MethodPost, "/api/tags", token, gin.H{"name": "work"}), &first)
	decode(t, do(t, r, http.MethodPost, "/api/tags", token, gin.H{"name": "work"}), &second)
	if first.ID != second.ID {
		t.Fatalf("duplicate tag created: %s vs %s", first.ID, second.ID)
	}

	task := createTask(t, r, token, "A")
	w := do(t, r, http.MethodPut, "/api/tasks/"+task.ID.String(), token, gin.H{"tags": []gin.H{{"id": first.ID.String()}}})
	if w.Code != http.StatusOK {
		t.Fatalf("tag by id: %d %s", w.Code, w.Body.String())
	}

	var tags []model.Tag
	decode(t, do(t, r, http.MethodGet, "/api/tags", token, nil), &tags)
	if len(tags) != 1 {
		t.Fatalf("tags = %+v", tags)
	}

	var resp struct {
		Deleted bool `json:"deleted"`
	}
	decode(t, do(t, r, http.MethodDelete, "/api/tags/"+first.ID.String(), token, nil), &resp)
	if !resp.Deleted {
		t.Fatal("expected deleted=true")
	}
	decode(t, do(t, r, http.MethodDelete, "/api/tags/"+first.ID.String(), token, nil), &resp)
	if resp.Deleted {
		t.Fatal("expected deleted=false on second delete")
	}
}
