package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ontap-backend/internal/model"
)

// tapResponse is the nested structure the mobile client consumes.
type tapResponse struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Position  int         `json:"position"`
	Keg       *kegSummary `json:"keg"`
	UpdatedAt string      `json:"updated_at"`
}

type kegSummary struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	KegType           string          `json:"keg_type"`
	FullVolumeML      float64         `json:"full_volume_ml"`
	ServedVolumeML    float64         `json:"served_volume_ml"`
	SpilledML         float64         `json:"spilled_ml"`
	RemainingVolumeML float64         `json:"remaining_volume_ml"`
	PercentFull       float64         `json:"percent_full"`
	Beverage          *model.Beverage `json:"beverage,omitempty"`
}

func summarizeKeg(k *model.Keg) *kegSummary {
	if k == nil {
		return nil
	}
	return &kegSummary{
		ID:                k.ID,
		Status:            k.Status,
		KegType:           k.KegType,
		FullVolumeML:      k.FullVolumeML,
		ServedVolumeML:    k.ServedVolumeML,
		SpilledML:         k.SpilledML,
		RemainingVolumeML: k.RemainingVolumeML(),
		PercentFull:       k.PercentFull(),
		Beverage:          k.Beverage,
	}
}

func tapJSON(t *model.Tap) tapResponse {
	return tapResponse{
		ID:        t.ID,
		Name:      t.Name,
		Position:  t.SortOrder,
		Keg:       summarizeKeg(t.CurrentKeg),
		UpdatedAt: t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ListTaps handles GET /api/taps.
func (h *Handler) ListTaps(c *gin.Context) {
	var taps []model.Tap
	if err := h.db.Preload("CurrentKeg.Beverage").Preload("CurrentKeg").
		Order("sort_order, id").Find(&taps).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve taps"})
		return
	}

	response := make([]tapResponse, 0, len(taps))
	for i := range taps {
		response = append(response, tapJSON(&taps[i]))
	}
	c.JSON(http.StatusOK, response)
}

// GetTap handles GET /api/taps/:id.
func (h *Handler) GetTap(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid tap ID"})
		return
	}

	var t model.Tap
	if err := h.db.Preload("CurrentKeg.Beverage").Preload("CurrentKeg").First(&t, id).Error; err != nil {
		c.AbortWithStatusJSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tapJSON(&t))
}

type createTapRequest struct {
	Name      string `json:"name" binding:"required"`
	SortOrder int    `json:"sort_order"`
}

// CreateTap handles POST /api/taps.
func (h *Handler) CreateTap(c *gin.Context) {
	var req createTapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := model.Tap{Name: req.Name, SortOrder: req.SortOrder}
	if err := h.db.Create(&t).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tapJSON(&t))
}

type attachKegRequest struct {
	KegID int64 `json:"keg_id" binding:"required"`
}

// AttachKeg handles POST /api/taps/:id/attach.
func (h *Handler) AttachKeg(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid tap ID"})
		return
	}

	var req attachKegRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.taps.Attach(c.Request.Context(), id, req.KegID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tapJSON(t))
}

// DetachKeg handles POST /api/taps/:id/detach.
func (h *Handler) DetachKeg(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid tap ID"})
		return
	}

	if err := h.taps.Detach(c.Request.Context(), id); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
