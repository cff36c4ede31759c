// Package session groups pours into time-windowed drinking sessions.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"ontap-backend/internal/model"
)

// Windower assigns pours to sessions under a fixed idle timeout. Sessions are
// a cached projection over their member pours; Rebuild restores the aggregate
// from the members whenever one changes.
type Windower struct {
	timeout time.Duration
}

// NewWindower creates a windower with the given idle timeout.
func NewWindower(timeout time.Duration) *Windower {
	return &Windower{timeout: timeout}
}

// Timeout returns the configured idle timeout.
func (w *Windower) Timeout() time.Duration {
	return w.timeout
}

// Assign binds the pour to the session covering its timestamp, extending the
// most recent session when it is still open and starting a new one otherwise.
// Idempotent: a pour that already has a session keeps it.
//
// The windowing is greedy and forward-only. Pours arriving out of order can
// land in a fresh session even when an older window would have covered them;
// merging previously-disjoint sessions is intentionally not handled.
func (w *Windower) Assign(tx *gorm.DB, pour *model.Pour) (*model.Session, error) {
	if pour.SessionID != nil {
		var s model.Session
		if err := tx.First(&s, *pour.SessionID).Error; err != nil {
			return nil, fmt.Errorf("failed to load session %d: %w", *pour.SessionID, err)
		}
		return &s, nil
	}

	var last model.Session
	err := tx.Order("end_time DESC").First(&last).Error
	switch {
	case err == nil && last.ActiveAt(pour.Time):
		// Pours on other kegs can extend the same window concurrently; only
		// the per-keg ledger is mutex-guarded. The aggregate is therefore
		// adjusted with guarded in-place updates, never read-modify-write.
		if err := tx.Model(&model.Session{}).Where("id = ?", last.ID).
			Update("volume_ml", gorm.Expr("volume_ml + ?", pour.VolumeML)).Error; err != nil {
			return nil, fmt.Errorf("failed to extend session %d: %w", last.ID, err)
		}
		if err := tx.Model(&model.Session{}).Where("id = ? AND start_time > ?", last.ID, pour.Time).
			Update("start_time", pour.Time).Error; err != nil {
			return nil, fmt.Errorf("failed to extend session %d: %w", last.ID, err)
		}
		end := pour.Time.Add(w.timeout)
		if err := tx.Model(&model.Session{}).Where("id = ? AND end_time < ?", last.ID, end).
			Update("end_time", end).Error; err != nil {
			return nil, fmt.Errorf("failed to extend session %d: %w", last.ID, err)
		}
		if pour.Time.Before(last.StartTime) {
			last.StartTime = pour.Time
		}
		if end.After(last.EndTime) {
			last.EndTime = end
		}
		last.VolumeML += pour.VolumeML
		if err := bindPour(tx, pour, last.ID); err != nil {
			return nil, err
		}
		return &last, nil

	case err == nil || errors.Is(err, gorm.ErrRecordNotFound):
		s := model.Session{
			StartTime: pour.Time,
			EndTime:   pour.Time.Add(w.timeout),
			VolumeML:  pour.VolumeML,
		}
		if err := tx.Create(&s).Error; err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		if err := bindPour(tx, pour, s.ID); err != nil {
			return nil, err
		}
		return &s, nil

	default:
		return nil, fmt.Errorf("failed to find last session: %w", err)
	}
}

func bindPour(tx *gorm.DB, pour *model.Pour, sessionID int64) error {
	if err := tx.Model(pour).Update("session_id", sessionID).Error; err != nil {
		return fmt.Errorf("failed to bind pour %d to session %d: %w", pour.ID, sessionID, err)
	}
	pour.SessionID = &sessionID
	return nil
}

// Rebuild recomputes the session window and volume purely from the current
// member pours. A session left with no members is deleted, not kept empty.
func (w *Windower) Rebuild(tx *gorm.DB, sessionID int64) error {
	var s model.Session
	if err := tx.First(&s, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}

	var pours []model.Pour
	if err := tx.Where("session_id = ?", sessionID).Order("time ASC").Find(&pours).Error; err != nil {
		return fmt.Errorf("failed to load pours for session %d: %w", sessionID, err)
	}

	if len(pours) == 0 {
		if err := tx.Delete(&s).Error; err != nil {
			return fmt.Errorf("failed to delete empty session %d: %w", sessionID, err)
		}
		return nil
	}

	s.StartTime = pours[0].Time
	s.EndTime = pours[len(pours)-1].Time.Add(w.timeout)
	s.VolumeML = 0
	for _, p := range pours {
		s.VolumeML += p.VolumeML
	}
	if err := tx.Save(&s).Error; err != nil {
		return fmt.Errorf("failed to rebuild session %d: %w", sessionID, err)
	}
	return nil
}

// SummarizeDrinkers renders a short "who's drinking" line for the session.
func SummarizeDrinkers(db *gorm.DB, sessionID int64) (string, error) {
	var usernames []string
	err := db.Model(&model.Pour{}).
		Distinct("drinkers.username").
		Joins("JOIN drinkers ON drinkers.id = pours.drinker_id").
		Where("pours.session_id = ?", sessionID).
		Pluck("drinkers.username", &usernames).Error
	if err != nil {
		return "", fmt.Errorf("failed to summarize session %d: %w", sessionID, err)
	}

	if len(usernames) == 0 {
		return "no known drinkers", nil
	}

	guestPresent := false
	named := usernames[:0]
	for _, u := range usernames {
		if u == model.GuestUsername {
			guestPresent = true
			continue
		}
		named = append(named, u)
	}

	trailer := ""
	if guestPresent {
		trailer = " (and possibly others)"
	}

	switch len(named) {
	case 0:
		return model.GuestUsername + trailer, nil
	case 1:
		return named[0] + trailer, nil
	case 2:
		return strings.Join(named, " and ") + trailer, nil
	default:
		return fmt.Sprintf("%s, %s and %d others%s", named[0], named[1], len(named)-2, trailer), nil
	}
}
