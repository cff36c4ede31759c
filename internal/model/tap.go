package model

import "time"

// Tap represents a logical dispensing point.
type Tap struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:128;not null" json:"name"`
	SortOrder    int       `gorm:"not null" json:"sort_order"`
	CurrentKegID *int64    `gorm:"index" json:"current_keg_id"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Associations
	CurrentKeg *Keg `gorm:"foreignKey:CurrentKegID" json:"current_keg,omitempty"`
}

// Active reports whether a keg is currently mounted on the tap.
func (t *Tap) Active() bool {
	return t.CurrentKegID != nil
}
