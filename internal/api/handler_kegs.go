package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ontap-backend/internal/keg"
	"ontap-backend/internal/model"
)

// ListKegs handles GET /api/kegs with an optional ?status= filter.
func (h *Handler) ListKegs(c *gin.Context) {
	q := h.db.Preload("Beverage").Order("start_time DESC")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}

	var kegs []model.Keg
	if err := q.Limit(limit).Find(&kegs).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve kegs"})
		return
	}

	response := make([]*kegSummary, 0, len(kegs))
	for i := range kegs {
		response = append(response, summarizeKeg(&kegs[i]))
	}
	c.JSON(http.StatusOK, response)
}

// GetKeg handles GET /api/kegs/:id.
func (h *Handler) GetKeg(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid keg ID"})
		return
	}

	var k model.Keg
	if err := h.db.Preload("Beverage").First(&k, id).Error; err != nil {
		c.AbortWithStatusJSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                  k.ID,
		"keg_type":            k.KegType,
		"status":              k.Status,
		"full_volume_ml":      k.FullVolumeML,
		"served_volume_ml":    k.ServedVolumeML,
		"spilled_ml":          k.SpilledML,
		"remaining_volume_ml": k.RemainingVolumeML(),
		"percent_full":        k.PercentFull(),
		"start_time":          k.StartTime,
		"end_time":            k.EndTime,
		"description":         k.Description,
		"beverage":            k.Beverage,
	})
}

type createKegRequest struct {
	BeverageID  *int64  `json:"beverage_id"`
	KegType     string  `json:"keg_type" binding:"required"`
	VolumeML    float64 `json:"full_volume_ml"`
	Description string  `json:"description"`
}

// CreateKeg handles POST /api/kegs.
func (h *Handler) CreateKeg(c *gin.Context) {
	var req createKegRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	k, err := keg.Create(h.db.WithContext(c.Request.Context()), req.BeverageID, req.KegType, req.VolumeML, req.Description)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, summarizeKeg(k))
}

// EndKeg handles POST /api/kegs/:id/end. A keg still mounted on a tap is
// detached first, which ends it; an unmounted keg cannot be ended.
func (h *Handler) EndKeg(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid keg ID"})
		return
	}

	var k model.Keg
	if err := h.db.First(&k, id).Error; err != nil {
		c.AbortWithStatusJSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	if k.TapID != nil {
		if err := h.taps.Detach(c.Request.Context(), *k.TapID); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
	} else if err := keg.End(h.db.WithContext(c.Request.Context()), &k); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
