package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createTagInput struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) ListTags(c *gin.Context) {
	tags, err := h.tags.ListByUser(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

// CreateTag returns the existing tag when the name is already taken.
func (h *Handler) CreateTag(c *gin.Context) {
	var input createTagInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	tag, err := h.tags.CreateOrGet(c.Request.Context(), ownerID(c), input.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *Handler) DeleteTag(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid tag id")
		return
	}
	deleted, err := h.tags.Remove(c.Request.Context(), ownerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
