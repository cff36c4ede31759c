package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ontap-backend/internal/model"
	"ontap-backend/internal/session"
)

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}

	var sessions []model.Session
	if err := h.db.Order("start_time DESC").Limit(limit).Find(&sessions).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession handles GET /api/sessions/:id, returning the window, its pours,
// and a short drinker summary.
func (h *Handler) GetSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	var s model.Session
	if err := h.db.First(&s, id).Error; err != nil {
		c.AbortWithStatusJSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	var pours []model.Pour
	if err := h.db.Preload("Drinker").Where("session_id = ?", s.ID).
		Order("time ASC").Find(&pours).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session pours"})
		return
	}

	summary, err := session.SummarizeDrinkers(h.db, s.ID)
	if err != nil {
		summary = ""
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              s.ID,
		"title":           s.Title(),
		"start_time":      s.StartTime,
		"end_time":        s.EndTime,
		"volume_ml":       s.VolumeML,
		"duration_sec":    int(s.Duration().Seconds()),
		"drinker_summary": summary,
		"pours":           pours,
	})
}
