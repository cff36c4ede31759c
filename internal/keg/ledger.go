// Package keg owns the volume ledger and lifecycle of kegs.
package keg

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ontap-backend/internal/model"
)

// ErrInvalidTransition is returned when a lifecycle operation is applied to a
// keg in the wrong status, e.g. ending a keg that is not on tap.
var ErrInvalidTransition = errors.New("invalid keg status transition")

// RecordPour adds the volume to the keg's served ledger. No capacity check:
// over-pours are allowed and clamp to empty for display.
func RecordPour(tx *gorm.DB, keg *model.Keg, volumeML float64) error {
	return adjustServed(tx, keg, volumeML)
}

// RecordSpill adds the volume to the keg's spilled ledger; used when hardware
// reports flow that must not be attributed to a drinker.
func RecordSpill(tx *gorm.DB, keg *model.Keg, volumeML float64) error {
	keg.SpilledML += volumeML
	if err := tx.Model(keg).Update("spilled_ml", gorm.Expr("spilled_ml + ?", volumeML)).Error; err != nil {
		return fmt.Errorf("failed to record spill on keg %d: %w", keg.ID, err)
	}
	return nil
}

// AdjustServed applies a correction delta to the served ledger. The delta may
// be negative (pour cancelled or volume revised downward).
func AdjustServed(tx *gorm.DB, keg *model.Keg, deltaML float64) error {
	return adjustServed(tx, keg, deltaML)
}

func adjustServed(tx *gorm.DB, keg *model.Keg, deltaML float64) error {
	keg.ServedVolumeML += deltaML
	if err := tx.Model(keg).Update("served_volume_ml", gorm.Expr("served_volume_ml + ?", deltaML)).Error; err != nil {
		return fmt.Errorf("failed to adjust served volume on keg %d: %w", keg.ID, err)
	}
	return nil
}

// End marks an on-tap keg finished, stamps its end time, and releases its tap
// binding.
func End(tx *gorm.DB, keg *model.Keg) error {
	if !keg.OnTap() {
		return fmt.Errorf("cannot end keg %d in status %q: %w", keg.ID, keg.Status, ErrInvalidTransition)
	}
	keg.Status = model.KegStatusFinished
	keg.EndTime = time.Now().UTC()
	keg.TapID = nil
	if err := tx.Model(keg).Updates(map[string]any{
		"status":   keg.Status,
		"end_time": keg.EndTime,
		"tap_id":   nil,
	}).Error; err != nil {
		return fmt.Errorf("failed to end keg %d: %w", keg.ID, err)
	}
	return nil
}

// Create builds a new keg in the available state. The capacity defaults from
// the keg type's nominal size when not given explicitly.
func Create(db *gorm.DB, beverageID *int64, kegType string, fullVolumeML float64, description string) (*model.Keg, error) {
	size, ok := model.KegSizes[kegType]
	if !ok {
		return nil, fmt.Errorf("unknown keg type %q", kegType)
	}
	if fullVolumeML <= 0 {
		fullVolumeML = size.VolumeML
	}

	now := time.Now().UTC()
	keg := &model.Keg{
		BeverageID:   beverageID,
		KegType:      kegType,
		Status:       model.KegStatusAvailable,
		FullVolumeML: fullVolumeML,
		Description:  description,
		StartTime:    now,
		EndTime:      now,
	}
	if err := db.Create(keg).Error; err != nil {
		return nil, fmt.Errorf("failed to create keg: %w", err)
	}
	return keg, nil
}
