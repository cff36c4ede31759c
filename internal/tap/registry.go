// Package tap owns the binding between dispensing points and kegs.
package tap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"ontap-backend/internal/event"
	"ontap-backend/internal/keg"
	"ontap-backend/internal/model"
)

var (
	// ErrTapAlreadyActive is returned by Attach when the tap already has a
	// mounted keg. Callers must detach first; there is no implicit swap.
	ErrTapAlreadyActive = errors.New("tap already has an active keg")
	// ErrKegAlreadyTapped is returned by Attach when the keg is mounted on
	// some tap. A keg may only ever be mounted once.
	ErrKegAlreadyTapped = errors.New("keg is already mounted on a tap")
)

// Registry mediates attach/detach operations on taps.
type Registry struct {
	db     *gorm.DB
	events *event.Deriver
}

// NewRegistry creates a tap registry.
func NewRegistry(db *gorm.DB, events *event.Deriver) *Registry {
	return &Registry{db: db, events: events}
}

// Attach mounts a keg on a tap, binding both directions transactionally.
// Both binding updates carry their precondition in the WHERE clause, so two
// racing attaches cannot both claim the tap or the keg: the loser matches
// zero rows and the whole transaction rolls back.
func (r *Registry) Attach(ctx context.Context, tapID, kegID int64) (*model.Tap, error) {
	var t model.Tap
	var k model.Keg
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&t, tapID).Error; err != nil {
			return fmt.Errorf("failed to load tap %d: %w", tapID, err)
		}
		if t.Active() {
			return fmt.Errorf("tap %q: %w", t.Name, ErrTapAlreadyActive)
		}
		if err := tx.First(&k, kegID).Error; err != nil {
			return fmt.Errorf("failed to load keg %d: %w", kegID, err)
		}
		if k.OnTap() || k.TapID != nil {
			return fmt.Errorf("keg %d: %w", k.ID, ErrKegAlreadyTapped)
		}

		now := time.Now().UTC()
		res := tx.Model(&model.Keg{}).
			Where("id = ? AND tap_id IS NULL AND status <> ?", k.ID, model.KegStatusOnTap).
			Updates(map[string]any{
				"status":     model.KegStatusOnTap,
				"start_time": now,
				"tap_id":     t.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mount keg %d: %w", k.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("keg %d: %w", k.ID, ErrKegAlreadyTapped)
		}
		k.Status = model.KegStatusOnTap
		k.StartTime = now
		k.TapID = &t.ID

		res = tx.Model(&model.Tap{}).
			Where("id = ? AND current_keg_id IS NULL", t.ID).
			Update("current_keg_id", k.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to bind tap %d: %w", t.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("tap %q: %w", t.Name, ErrTapAlreadyActive)
		}
		t.CurrentKegID = &k.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Derived events are best-effort audit trail; a failure here must not
	// undo the attach.
	if err := r.events.KegTapped(ctx, &k); err != nil {
		log.Printf("failed to derive keg_tapped event for keg %d: %v", k.ID, err)
	}

	t.CurrentKeg = &k
	return &t, nil
}

// Detach unbinds the tap's current keg and ends it. No-op when the tap is
// already unbound.
func (r *Registry) Detach(ctx context.Context, tapID int64) error {
	var t model.Tap
	if err := r.db.WithContext(ctx).Preload("CurrentKeg").First(&t, tapID).Error; err != nil {
		return fmt.Errorf("failed to load tap %d: %w", tapID, err)
	}
	if !t.Active() || t.CurrentKeg == nil {
		return nil
	}

	k := t.CurrentKeg
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Tap{}).
			Where("id = ? AND current_keg_id = ?", t.ID, k.ID).
			Update("current_keg_id", nil)
		if res.Error != nil {
			return fmt.Errorf("failed to unbind tap %d: %w", t.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Another detach got here first.
			return nil
		}
		t.CurrentKegID = nil
		return keg.End(tx, k)
	})
	if err != nil {
		return err
	}

	if err := r.events.KegEnded(ctx, k, &t.ID); err != nil {
		log.Printf("failed to derive keg_ended event for keg %d: %v", k.ID, err)
	}
	return nil
}

// IsActive reports whether the tap has a keg mounted.
func (r *Registry) IsActive(ctx context.Context, tapID int64) (bool, error) {
	var t model.Tap
	if err := r.db.WithContext(ctx).First(&t, tapID).Error; err != nil {
		return false, fmt.Errorf("failed to load tap %d: %w", tapID, err)
	}
	return t.Active(), nil
}
