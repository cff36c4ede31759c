package model

import (
	"fmt"
	"time"
)

// Session is a time-windowed aggregate of pours. It is a cached projection
// over its member pours: the windower rebuilds it whenever a member changes.
type Session struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:256" json:"name"`
	StartTime time.Time `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"not null;index" json:"end_time"`
	VolumeML  float64   `gorm:"not null" json:"volume_ml"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Duration is the window length.
func (s *Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// ActiveAt reports whether the window is still open at the given time.
func (s *Session) ActiveAt(at time.Time) bool {
	return s.EndTime.After(at)
}

// Title returns the display name, falling back to the session id.
func (s *Session) Title() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("Session #%d", s.ID)
}
