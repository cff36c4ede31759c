package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ontap-backend/internal/model"
	"ontap-backend/internal/pour"
)

// createPourRequest carries the recording contract: hardware-derived or
// manually-entered pours both come through here.
type createPourRequest struct {
	TapName   string   `json:"tap_name"`
	MeterName string   `json:"meter_name"`
	Ticks     int64    `json:"ticks"`
	VolumeML  *float64 `json:"volume_ml"`
	Username  string   `json:"username"`
	PourTime  string   `json:"pour_time"`
	Duration  int      `json:"duration"`
	Shout     string   `json:"shout"`
	Spilled   bool     `json:"spilled"`
}

// CreatePour handles POST /api/pours.
func (h *Handler) CreatePour(c *gin.Context) {
	var req createPourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TapName == "" && req.MeterName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tap_name or meter_name is required"})
		return
	}

	r := pour.Request{
		TapName:         req.TapName,
		MeterName:       req.MeterName,
		Ticks:           req.Ticks,
		VolumeML:        req.VolumeML,
		Username:        req.Username,
		DurationSeconds: req.Duration,
		Shout:           req.Shout,
		Spilled:         req.Spilled,
	}
	if req.PourTime != "" {
		t, err := time.Parse(time.RFC3339, req.PourTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pour_time format. Use RFC3339."})
			return
		}
		r.PourTime = &t
	}

	p, err := h.recorder.Record(c.Request.Context(), r)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Pour recorded as spill"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListPours handles GET /api/pours.
func (h *Handler) ListPours(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}

	var pours []model.Pour
	if err := h.db.Preload("Drinker").Preload("Keg").Preload("Keg.Beverage").
		Order("time DESC").Limit(limit).Find(&pours).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve pours"})
		return
	}
	c.JSON(http.StatusOK, pours)
}

// GetPour handles GET /api/pours/:id.
func (h *Handler) GetPour(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid pour ID"})
		return
	}

	var p model.Pour
	if err := h.db.Preload("Drinker").Preload("Keg").Preload("Session").First(&p, id).Error; err != nil {
		c.AbortWithStatusJSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

type cancelPourRequest struct {
	Spilled bool `json:"spilled"`
}

// CancelPour handles POST /api/pours/:id/cancel.
func (h *Handler) CancelPour(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid pour ID"})
		return
	}

	var req cancelPourRequest
	// Body is optional; an empty body cancels without spilling.
	_ = c.ShouldBindJSON(&req)

	if err := h.recorder.Cancel(c.Request.Context(), id, req.Spilled); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type reassignPourRequest struct {
	Username string `json:"username" binding:"required"`
}

// ReassignPour handles POST /api/pours/:id/reassign.
func (h *Handler) ReassignPour(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid pour ID"})
		return
	}

	var req reassignPourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.recorder.Reassign(c.Request.Context(), id, req.Username)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

type setPourVolumeRequest struct {
	VolumeML float64 `json:"volume_ml" binding:"required"`
}

// SetPourVolume handles POST /api/pours/:id/volume.
func (h *Handler) SetPourVolume(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid pour ID"})
		return
	}

	var req setPourVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.recorder.SetVolume(c.Request.Context(), id, req.VolumeML)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}
