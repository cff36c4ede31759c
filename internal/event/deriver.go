// Package event derives the append-only log of notable state changes.
package event

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"ontap-backend/internal/model"
)

// lowVolumeThreshold is the fraction of capacity below which a keg counts as
// running low.
const lowVolumeThreshold = 0.15

// Notifier receives derived events that subscribers may care about. The
// notification worker pool implements it; a nil notifier disables pushes.
type Notifier interface {
	Dispatch(tapID int64, kind model.EventKind)
}

// Deriver emits derived events exactly once per condition. Derivation is
// best-effort: it runs after the owning transaction commits, and callers log
// rather than propagate its errors. Exactly-once emission relies on the
// caller serializing work per keg.
type Deriver struct {
	db       *gorm.DB
	notifier Notifier
}

// NewDeriver creates an event deriver. notifier may be nil.
func NewDeriver(db *gorm.DB, notifier Notifier) *Deriver {
	return &Deriver{db: db, notifier: notifier}
}

// KegTapped emits the keg_tapped event the first time a keg is mounted.
func (d *Deriver) KegTapped(ctx context.Context, keg *model.Keg) error {
	if !keg.OnTap() {
		return nil
	}
	created, err := d.createUnlessExists(ctx, model.Event{
		Kind:  model.EventKegTapped,
		Time:  keg.StartTime,
		KegID: &keg.ID,
	}, "kind = ? AND keg_id = ?", model.EventKegTapped, keg.ID)
	if err != nil || !created {
		return err
	}
	return nil
}

// KegEnded emits the keg_ended event the first time a keg is finished and
// notifies the subscribers of the tap it was mounted on. tapID is passed
// explicitly because ending a keg releases its tap binding.
func (d *Deriver) KegEnded(ctx context.Context, keg *model.Keg, tapID *int64) error {
	if !keg.Finished() {
		return nil
	}
	created, err := d.createUnlessExists(ctx, model.Event{
		Kind:  model.EventKegEnded,
		Time:  keg.EndTime,
		KegID: &keg.ID,
	}, "kind = ? AND keg_id = ?", model.EventKegEnded, keg.ID)
	if err != nil || !created {
		return err
	}
	if d.notifier != nil && tapID != nil {
		d.notifier.Dispatch(*tapID, model.EventKegEnded)
	}
	return nil
}

// PourRecorded emits every event a new pour can trigger: keg lifecycle
// catch-up, session_started, session_joined, drink_poured, and the
// keg_volume_low crossing. remainingBeforeML is the keg's remaining volume
// before this pour was applied.
func (d *Deriver) PourRecorded(ctx context.Context, pour *model.Pour, keg *model.Keg, remainingBeforeML float64) error {
	if err := d.KegTapped(ctx, keg); err != nil {
		return err
	}
	if err := d.KegEnded(ctx, keg, keg.TapID); err != nil {
		return err
	}

	if pour.SessionID != nil {
		var s model.Session
		if err := d.db.WithContext(ctx).First(&s, *pour.SessionID).Error; err != nil {
			return fmt.Errorf("failed to load session %d: %w", *pour.SessionID, err)
		}

		if _, err := d.createUnlessExists(ctx, model.Event{
			Kind:      model.EventSessionStarted,
			Time:      s.StartTime,
			PourID:    &pour.ID,
			KegID:     &keg.ID,
			SessionID: &s.ID,
			DrinkerID: pour.DrinkerID,
		}, "kind = ? AND session_id = ?", model.EventSessionStarted, s.ID); err != nil {
			return err
		}

		if pour.DrinkerID != nil {
			if _, err := d.createUnlessExists(ctx, model.Event{
				Kind:      model.EventSessionJoined,
				Time:      pour.Time,
				PourID:    &pour.ID,
				SessionID: &s.ID,
				DrinkerID: pour.DrinkerID,
			}, "kind = ? AND session_id = ? AND drinker_id = ?",
				model.EventSessionJoined, s.ID, *pour.DrinkerID); err != nil {
				return err
			}
		}
	}

	if _, err := d.createUnlessExists(ctx, model.Event{
		Kind:      model.EventPourRecorded,
		Time:      pour.Time,
		PourID:    &pour.ID,
		KegID:     &keg.ID,
		SessionID: pour.SessionID,
		DrinkerID: pour.DrinkerID,
	}, "kind = ? AND pour_id = ?", model.EventPourRecorded, pour.ID); err != nil {
		return err
	}

	threshold := keg.FullVolumeML * lowVolumeThreshold
	remainingAfter := keg.RemainingVolumeML()
	if remainingAfter <= threshold && remainingBeforeML > threshold {
		created, err := d.createUnlessExists(ctx, model.Event{
			Kind:      model.EventKegVolumeLow,
			Time:      pour.Time,
			PourID:    &pour.ID,
			KegID:     &keg.ID,
			SessionID: pour.SessionID,
			DrinkerID: pour.DrinkerID,
		}, "kind = ? AND pour_id = ?", model.EventKegVolumeLow, pour.ID)
		if err != nil {
			return err
		}
		if created && d.notifier != nil && keg.TapID != nil {
			d.notifier.Dispatch(*keg.TapID, model.EventKegVolumeLow)
		}
	}

	return nil
}

// createUnlessExists creates the event only if no event matches the
// condition. Reports whether a row was created.
func (d *Deriver) createUnlessExists(ctx context.Context, e model.Event, query string, args ...any) (bool, error) {
	db := d.db.WithContext(ctx)

	var count int64
	if err := db.Model(&model.Event{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check for existing %s event: %w", e.Kind, err)
	}
	if count > 0 {
		return false, nil
	}
	if err := db.Create(&e).Error; err != nil {
		return false, fmt.Errorf("failed to create %s event: %w", e.Kind, err)
	}
	return true, nil
}
