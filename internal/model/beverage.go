package model

import "time"

// Beverage describes what is inside a keg. Only the fields the tap list and
// keg API need to display; the full catalog lives in the admin collaborator.
type Beverage struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:256;not null" json:"name"`
	Style        string    `gorm:"size:128" json:"style"`
	BeverageType string    `gorm:"size:64" json:"beverage_type"`
	ABVPercent   float64   `json:"abv_percent"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}
