package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"ontap-backend/internal/keg"
	"ontap-backend/internal/pour"
	"ontap-backend/internal/tap"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db       *gorm.DB
	recorder *pour.Recorder
	taps     *tap.Registry
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, recorder *pour.Recorder, taps *tap.Registry, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		db:       db,
		recorder: recorder,
		taps:     taps,
		webpush:  webpushOptions,
	}
}

// statusForError maps the domain error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, tap.ErrTapAlreadyActive),
		errors.Is(err, tap.ErrKegAlreadyTapped),
		errors.Is(err, keg.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, pour.ErrNoActiveKeg),
		errors.Is(err, pour.ErrUnknownDrinker):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
