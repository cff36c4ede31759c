package model

import "time"

// GuestUsername is the well-known account unattributed pours fall back to.
const GuestUsername = "guest"

// Drinker is the slice of the user account this core attributes pours to.
type Drinker struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:128;not null" json:"username"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Guest reports whether this is the shared guest account.
func (d *Drinker) Guest() bool {
	return d.Username == GuestUsername
}
