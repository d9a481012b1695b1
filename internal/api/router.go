package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tasktrack/internal/service"
)

// Handler serves the JSON API on top of the task and tag services.
type Handler struct {
	auth  *service.AuthService
	tasks *service.TaskService
	tags  *service.TagService
}

func NewHandler(auth *service.AuthService, tasks *service.TaskService, tags *service.TagService) *Handler {
	return &Handler{auth: auth, tasks: tasks, tags: tags}
}

// NewRouter wires every route onto a gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	authed := r.Group("/api", RequireAuth(h.auth))
	{
		authed.GET("/tasks", h.ListTasks)
		authed.POST("/tasks", h.CreateTask)
		authed.GET("/tasks/completed", h.CompletedTasks)
		authed.GET("/tasks/:id", h.GetTask)
		authed.PUT("/tasks/:id", h.UpdateTask)
		authed.DELETE("/tasks/:id", h.DeleteTask)
		authed.POST("/tasks/:id/move", h.MoveTask)
		authed.POST("/tasks/:id/complete", h.CompleteTask)
		authed.DELETE("/tasks/:id/complete", h.UncompleteTask)

		authed.GET("/tags", h.ListTags)
		authed.POST("/tags", h.CreateTag)
		authed.DELETE("/tags/:id", h.DeleteTag)
	}

	return r
}
