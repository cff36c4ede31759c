package model

import "time"

// Pour is one discrete dispensing event. Immutable after creation except for
// reassignment, volume correction, and cancellation, all of which go through
// the pour recorder so the ledger and session stay consistent.
type Pour struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	Ticks           int64     `gorm:"not null" json:"ticks"`
	VolumeML        float64   `gorm:"not null" json:"volume_ml"`
	Time            time.Time `gorm:"not null;index" json:"time"`
	DurationSeconds int       `gorm:"not null" json:"duration"`
	Shout           string    `json:"shout"`
	DrinkerID       *int64    `gorm:"index" json:"drinker_id"`
	KegID           int64     `gorm:"not null;index" json:"keg_id"`
	SessionID       *int64    `gorm:"index" json:"session_id"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`

	// Associations
	Drinker *Drinker `json:"drinker,omitempty"`
	Keg     *Keg     `json:"keg,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// VolumeOz converts the pour volume to fluid ounces for imperial display.
func (p *Pour) VolumeOz() float64 {
	return p.VolumeML * 0.033814
}

// GuestPour reports whether the pour is unattributed or owned by the guest
// account.
func (p *Pour) GuestPour() bool {
	return p.Drinker == nil || p.Drinker.Guest()
}
