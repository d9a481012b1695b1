package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tasktrack/internal/model"
	"tasktrack/internal/service"
)

// tagInput refers to an existing tag by id or to a tag by name.
type tagInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createTaskInput struct {
	Content string     `json:"content" binding:"required"`
	Tags    []tagInput `json:"tags"`
}

type updateTaskInput struct {
	Content   *string         `json:"content"`
	Tags      *[]tagInput     `json:"tags"`
	Position  *int            `json:"position"`
	Completed json.RawMessage `json:"completed"`
}

type moveTaskInput struct {
	Position *int `json:"position" binding:"required"`
}

type completedDayOutput struct {
	Date  string       `json:"date"`
	Count int          `json:"count"`
	Tasks []model.Task `json:"tasks"`
}

// ListTasks handles GET /api/tasks?tag=<id>&completed=<bool>.
func (h *Handler) ListTasks(c *gin.Context) {
	var filter service.TaskFilter
	for _, raw := range c.QueryArray("tag") {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid tag id")
			return
		}
		filter.TagIDs = append(filter.TagIDs, id)
	}
	completed, err := service.ParseCompletionText(c.Query("completed"))
	if err != nil {
		respondError(c, err)
		return
	}
	filter.Completed = completed

	tasks, err := h.tasks.List(c.Request.Context(), ownerID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var input createTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	refs, ok := tagRefs(c, input.Tags)
	if !ok {
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), ownerID(c), service.TaskInput{Content: input.Content, Tags: refs})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) GetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := h.tasks.Get(c.Request.Context(), ownerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTask applies any of content, tags, position and completed in one go.
func (h *Handler) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var input updateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	patch := service.TaskPatch{Content: input.Content, Position: input.Position}
	if input.Tags != nil {
		refs, ok := tagRefs(c, *input.Tags)
		if !ok {
			return
		}
		patch.Tags = &refs
	}
	completed, err := service.ParseCompletionValue(input.Completed)
	if err != nil {
		respondError(c, err)
		return
	}
	patch.Completed = completed

	task, err := h.tasks.Update(c.Request.Context(), ownerID(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) MoveTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var input moveTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	task, err := h.tasks.Move(c.Request.Context(), ownerID(c), id, *input.Position)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) CompleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := h.tasks.Complete(c.Request.Context(), ownerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) UncompleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := h.tasks.Uncomplete(c.Request.Context(), ownerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

// CompletedTasks handles GET /api/tasks/completed?tz=<IANA zone>.
func (h *Handler) CompletedTasks(c *gin.Context) {
	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			badRequest(c, "invalid time zone")
			return
		}
		loc = parsed
	}

	days, err := h.tasks.CompletedByDay(c.Request.Context(), ownerID(c), loc)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]completedDayOutput, 0, len(days))
	for _, day := range days {
		out = append(out, completedDayOutput{
			Date:  day.Date.Format("2006-01-02"),
			Count: len(day.Tasks),
			Tasks: day.Tasks,
		})
	}
	c.JSON(http.StatusOK, out)
}

func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

func tagRefs(c *gin.Context, inputs []tagInput) ([]service.TagRef, bool) {
	refs := make([]service.TagRef, 0, len(inputs))
	for _, in := range inputs {
		if in.ID == "" {
			refs = append(refs, service.TagRef{Name: in.Name})
			continue
		}
		id, err := uuid.Parse(in.ID)
		if err != nil {
			badRequest(c, "invalid tag id")
			return nil, false
		}
		refs = append(refs, service.TagRef{ID: id})
	}
	return refs, true
}
