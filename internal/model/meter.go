package model

import (
	"fmt"
	"time"
)

// Controller is a hardware board that hosts one or more flow meters.
type Controller struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;size:128;not null"`
	ModelName    string `gorm:"size:128"`
	SerialNumber string `gorm:"size:128"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FlowMeter binds a controller port to a tap and carries its calibration.
type FlowMeter struct {
	ID           int64  `gorm:"primaryKey"`
	ControllerID int64  `gorm:"not null;index:idx_meter_port,unique"`
	PortName     string `gorm:"size:128;not null;index:idx_meter_port,unique"`
	// TicksPerML converts debounced tick deltas into millilitres.
	TicksPerML float64 `gorm:"not null"`
	TapID      *int64  `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Controller Controller
	Tap        *Tap
}

// MeterName is the wire identity of the meter: "<controller>.<port>".
func (m *FlowMeter) MeterName() string {
	return fmt.Sprintf("%s.%s", m.Controller.Name, m.PortName)
}
