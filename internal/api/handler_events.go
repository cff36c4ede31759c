package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ontap-backend/internal/model"
)

// ListEvents handles GET /api/events with optional ?kind= and ?limit=.
func (h *Handler) ListEvents(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}

	q := h.db.Order("id DESC").Limit(limit)
	if kind := c.Query("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var events []model.Event
	if err := q.Find(&events).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve events"})
		return
	}
	c.JSON(http.StatusOK, events)
}
