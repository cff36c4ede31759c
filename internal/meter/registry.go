// Package meter maps physical flow sensors to taps and turns raw tick
// counters into debounced pour deltas.
package meter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"ontap-backend/internal/model"
)

// ErrInvalidCalibration is returned when a meter's ticks-per-mL factor is not
// positive.
var ErrInvalidCalibration = errors.New("flow meter has a non-positive calibration factor")

// Registry resolves meter identities to calibration factors and bound taps.
type Registry struct {
	db                *gorm.DB
	defaultTicksPerML float64
}

// NewRegistry creates a calibration registry. New meters are seeded with the
// given default ticks-per-mL factor.
func NewRegistry(db *gorm.DB, defaultTicksPerML float64) *Registry {
	return &Registry{db: db, defaultTicksPerML: defaultTicksPerML}
}

// GetOrCreateByName resolves a "<controller>.<port>" meter identity,
// creating the controller and meter records on first observation.
func (r *Registry) GetOrCreateByName(ctx context.Context, meterName string) (*model.FlowMeter, error) {
	controllerName, portName, ok := strings.Cut(meterName, ".")
	if !ok || controllerName == "" || portName == "" {
		return nil, fmt.Errorf("invalid meter name %q: want <controller>.<port>", meterName)
	}

	db := r.db.WithContext(ctx)

	var controller model.Controller
	if err := db.Where(model.Controller{Name: controllerName}).
		FirstOrCreate(&controller).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert controller %q: %w", controllerName, err)
	}

	var m model.FlowMeter
	err := db.Where(model.FlowMeter{ControllerID: controller.ID, PortName: portName}).
		Attrs(model.FlowMeter{TicksPerML: r.defaultTicksPerML}).
		FirstOrCreate(&m).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert meter %q: %w", meterName, err)
	}

	m.Controller = controller
	if m.TapID != nil {
		var t model.Tap
		if err := db.Preload("CurrentKeg").First(&t, *m.TapID).Error; err == nil {
			m.Tap = &t
		}
	}
	return &m, nil
}

// ForTap returns the meter feeding the given tap, if any.
func (r *Registry) ForTap(ctx context.Context, tapID int64) (*model.FlowMeter, error) {
	var m model.FlowMeter
	err := r.db.WithContext(ctx).Preload("Controller").
		Where("tap_id = ?", tapID).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// VolumeForTicks converts a debounced tick delta into millilitres using the
// meter's calibration.
func VolumeForTicks(m *model.FlowMeter, ticks int64) (float64, error) {
	if m.TicksPerML <= 0 {
		return 0, fmt.Errorf("meter %d: %w", m.ID, ErrInvalidCalibration)
	}
	return float64(ticks) / m.TicksPerML, nil
}
