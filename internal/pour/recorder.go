// Package pour is the transactional entry point for recording, correcting,
// and cancelling pours.
package pour

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"ontap-backend/internal/event"
	"ontap-backend/internal/keg"
	"ontap-backend/internal/meter"
	"ontap-backend/internal/model"
	"ontap-backend/internal/session"
)

var (
	// ErrNoActiveKeg is returned when the resolved tap has no mounted keg.
	ErrNoActiveKeg = errors.New("no active keg at this tap")
	// ErrUnknownDrinker is returned when an explicitly named drinker does
	// not exist. Falling back to guest is the caller's policy decision.
	ErrUnknownDrinker = errors.New("unknown drinker")
)

// Request carries the recording contract consumed by the API and the
// ingestion listener. Either TapName or MeterName identifies the tap.
type Request struct {
	TapName         string
	MeterName       string
	Ticks           int64
	VolumeML        *float64
	Username        string
	PourTime        *time.Time
	DurationSeconds int
	Shout           string
	Spilled         bool
}

// Recorder coordinates the ledger, windower, and deriver for pour mutations.
type Recorder struct {
	db       *gorm.DB
	windower *session.Windower
	deriver  *event.Deriver
	meters   *meter.Registry
	locks    *kegLocks
}

// NewRecorder creates a pour recorder.
func NewRecorder(db *gorm.DB, windower *session.Windower, deriver *event.Deriver, meters *meter.Registry) *Recorder {
	return &Recorder{
		db:       db,
		windower: windower,
		deriver:  deriver,
		meters:   meters,
		locks:    newKegLocks(),
	}
}

// Record creates a pour on the tap's mounted keg, updating the volume ledger
// and session window in one transaction and deriving events afterwards.
// A spill returns (nil, nil): recorded against the keg, but no pour exists.
func (r *Recorder) Record(ctx context.Context, req Request) (*model.Pour, error) {
	t, err := r.resolveTap(ctx, req)
	if err != nil {
		return nil, err
	}
	if t.CurrentKeg == nil {
		return nil, fmt.Errorf("tap %q: %w", t.Name, ErrNoActiveKeg)
	}
	k := t.CurrentKeg

	lock := r.locks.get(k.ID)
	lock.Lock()
	defer lock.Unlock()

	// The binding and the ledger were resolved before the lock was taken; a
	// detach or a concurrent pour may have moved either since.
	if err := r.verifyMounted(ctx, t, k); err != nil {
		return nil, err
	}

	volumeML, err := r.resolveVolume(ctx, t, req)
	if err != nil {
		return nil, err
	}

	if req.Spilled {
		if err := keg.RecordSpill(r.db.WithContext(ctx), k, volumeML); err != nil {
			return nil, err
		}
		return nil, nil
	}

	drinker, err := r.resolveDrinker(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	pourTime := time.Now().UTC()
	if req.PourTime != nil {
		pourTime = req.PourTime.UTC()
	}

	remainingBefore := k.RemainingVolumeML()

	p := &model.Pour{
		Ticks:           req.Ticks,
		VolumeML:        volumeML,
		Time:            pourTime,
		DurationSeconds: req.DurationSeconds,
		Shout:           req.Shout,
		KegID:           k.ID,
	}
	if drinker != nil {
		p.DrinkerID = &drinker.ID
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("failed to create pour: %w", err)
		}
		if err := keg.RecordPour(tx, k, volumeML); err != nil {
			return err
		}
		_, err := r.windower.Assign(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := r.deriver.PourRecorded(ctx, p, k, remainingBefore); err != nil {
		log.Printf("failed to derive events for pour %d: %v", p.ID, err)
	}

	p.Drinker = drinker
	p.Keg = k
	if p.SessionID != nil {
		var s model.Session
		if err := r.db.WithContext(ctx).First(&s, *p.SessionID).Error; err == nil {
			p.Session = &s
		}
	}
	return p, nil
}

// Reassign changes the drinker a pour is attributed to, rewrites the drinker
// on every event referencing the pour, and rebuilds the session. No-op when
// the attribution is unchanged.
func (r *Recorder) Reassign(ctx context.Context, pourID int64, username string) (*model.Pour, error) {
	p, err := r.loadPour(ctx, pourID)
	if err != nil {
		return nil, err
	}

	var drinker model.Drinker
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&drinker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%q: %w", username, ErrUnknownDrinker)
		}
		return nil, fmt.Errorf("failed to look up drinker %q: %w", username, err)
	}

	if p.DrinkerID != nil && *p.DrinkerID == drinker.ID {
		return p, nil
	}

	lock := r.locks.get(p.KegID)
	lock.Lock()
	defer lock.Unlock()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(p).Update("drinker_id", drinker.ID).Error; err != nil {
			return fmt.Errorf("failed to reassign pour %d: %w", p.ID, err)
		}
		if err := tx.Model(&model.Event{}).Where("pour_id = ?", p.ID).
			Update("drinker_id", drinker.ID).Error; err != nil {
			return fmt.Errorf("failed to reassign events for pour %d: %w", p.ID, err)
		}
		if p.SessionID != nil {
			return r.windower.Rebuild(tx, *p.SessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.DrinkerID = &drinker.ID
	p.Drinker = &drinker
	return p, nil
}

// Cancel soft-undoes a pour: the served volume is returned to the keg (and
// booked as spillage when requested), the pour row is deleted, and its
// session is rebuilt. Events keep their audit value with the pour reference
// cleared.
func (r *Recorder) Cancel(ctx context.Context, pourID int64, spilled bool) error {
	p, err := r.loadPour(ctx, pourID)
	if err != nil {
		return err
	}

	lock := r.locks.get(p.KegID)
	lock.Lock()
	defer lock.Unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := keg.AdjustServed(tx, p.Keg, -p.VolumeML); err != nil {
			return err
		}
		if spilled {
			if err := keg.RecordSpill(tx, p.Keg, p.VolumeML); err != nil {
				return err
			}
		}
		if err := tx.Model(&model.Event{}).Where("pour_id = ?", p.ID).
			Update("pour_id", nil).Error; err != nil {
			return fmt.Errorf("failed to unlink events for pour %d: %w", p.ID, err)
		}
		if err := tx.Delete(p).Error; err != nil {
			return fmt.Errorf("failed to delete pour %d: %w", p.ID, err)
		}
		if p.SessionID != nil {
			return r.windower.Rebuild(tx, *p.SessionID)
		}
		return nil
	})
}

// SetVolume corrects a pour's volume, applying the delta to the keg ledger
// and rebuilding the session. No-op when the volume is unchanged.
func (r *Recorder) SetVolume(ctx context.Context, pourID int64, newVolumeML float64) (*model.Pour, error) {
	p, err := r.loadPour(ctx, pourID)
	if err != nil {
		return nil, err
	}
	if newVolumeML == p.VolumeML {
		return p, nil
	}

	lock := r.locks.get(p.KegID)
	lock.Lock()
	defer lock.Unlock()

	delta := newVolumeML - p.VolumeML
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(p).Update("volume_ml", newVolumeML).Error; err != nil {
			return fmt.Errorf("failed to update pour %d volume: %w", p.ID, err)
		}
		if err := keg.AdjustServed(tx, p.Keg, delta); err != nil {
			return err
		}
		if p.SessionID != nil {
			return r.windower.Rebuild(tx, *p.SessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.VolumeML = newVolumeML
	return p, nil
}

func (r *Recorder) loadPour(ctx context.Context, pourID int64) (*model.Pour, error) {
	var p model.Pour
	if err := r.db.WithContext(ctx).Preload("Keg").First(&p, pourID).Error; err != nil {
		return nil, fmt.Errorf("failed to load pour %d: %w", pourID, err)
	}
	return &p, nil
}

// verifyMounted re-reads the tap binding and the keg ledger. Record resolves
// both before taking the per-keg lock, so once the lock is held the keg must
// be confirmed still mounted on the tap before any volume is booked.
func (r *Recorder) verifyMounted(ctx context.Context, t *model.Tap, k *model.Keg) error {
	db := r.db.WithContext(ctx)
	if err := db.First(t, t.ID).Error; err != nil {
		return fmt.Errorf("failed to reload tap %d: %w", t.ID, err)
	}
	if t.CurrentKegID == nil || *t.CurrentKegID != k.ID {
		return fmt.Errorf("tap %q: %w", t.Name, ErrNoActiveKeg)
	}
	if err := db.First(k, k.ID).Error; err != nil {
		return fmt.Errorf("failed to reload keg %d: %w", k.ID, err)
	}
	return nil
}

// resolveTap finds the tap either by its display name or by the port of the
// meter feeding it ("<controller>.<port>" or a bare port name).
func (r *Recorder) resolveTap(ctx context.Context, req Request) (*model.Tap, error) {
	db := r.db.WithContext(ctx)

	var t model.Tap
	if req.TapName != "" {
		if err := db.Preload("CurrentKeg").Where("name = ?", req.TapName).First(&t).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve tap %q: %w", req.TapName, err)
		}
		return &t, nil
	}

	parts := strings.Split(req.MeterName, ".")
	portName := parts[len(parts)-1]
	err := db.Preload("CurrentKeg").
		Joins("JOIN flow_meters ON flow_meters.tap_id = taps.id").
		Where("flow_meters.port_name = ?", portName).
		First(&t).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tap for meter %q: %w", req.MeterName, err)
	}
	return &t, nil
}

// resolveVolume derives the pour volume from ticks via the tap's meter when
// the caller did not supply one explicitly.
func (r *Recorder) resolveVolume(ctx context.Context, t *model.Tap, req Request) (float64, error) {
	if req.VolumeML != nil {
		return *req.VolumeML, nil
	}
	m, err := r.meters.ForTap(ctx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("no meter for tap %q to derive volume from: %w", t.Name, err)
	}
	return meter.VolumeForTicks(m, req.Ticks)
}

// resolveDrinker maps an explicit username to its drinker, or falls back to
// the shared guest account when no name was given.
func (r *Recorder) resolveDrinker(ctx context.Context, username string) (*model.Drinker, error) {
	db := r.db.WithContext(ctx)

	if username != "" {
		var d model.Drinker
		if err := db.Where("username = ?", username).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%q: %w", username, ErrUnknownDrinker)
			}
			return nil, fmt.Errorf("failed to look up drinker %q: %w", username, err)
		}
		return &d, nil
	}

	var guest model.Drinker
	if err := db.Where(model.Drinker{Username: model.GuestUsername}).
		FirstOrCreate(&guest).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve guest drinker: %w", err)
	}
	return &guest, nil
}
