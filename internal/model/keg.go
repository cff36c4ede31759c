package model

import "time"

// Keg statuses.
const (
	KegStatusAvailable = "available"
	KegStatusOnTap     = "on_tap"
	KegStatusFinished  = "finished"
)

// KegSize describes a standard keg type and its nominal capacity.
type KegSize struct {
	Description string
	VolumeML    float64
}

// KegSizes maps keg type names to their nominal capacities.
var KegSizes = map[string]KegSize{
	"half_barrel":    {Description: "Half Barrel (15.5 gal)", VolumeML: 58674},
	"quarter_barrel": {Description: "Quarter Barrel (7.75 gal)", VolumeML: 29337},
	"sixth_barrel":   {Description: "Sixth Barrel (5.17 gal)", VolumeML: 19570},
	"cornelius":      {Description: "Cornelius (5 gal)", VolumeML: 18927},
	"euro":           {Description: "Euro (50L)", VolumeML: 50000},
	"other":          {Description: "Other", VolumeML: 0},
}

// Keg represents a tapped vessel and its volume ledger.
type Keg struct {
	ID             int64   `gorm:"primaryKey" json:"id"`
	BeverageID     *int64  `gorm:"index" json:"beverage_id"`
	KegType        string  `gorm:"size:32;not null" json:"keg_type"`
	Status         string  `gorm:"size:16;not null;index" json:"status"`
	FullVolumeML   float64 `gorm:"not null" json:"full_volume_ml"`
	ServedVolumeML float64 `gorm:"not null" json:"served_volume_ml"`
	SpilledML      float64 `gorm:"not null" json:"spilled_ml"`
	Description    string  `json:"description"`
	// TapID is set while the keg is mounted; the Tap side points back via
	// CurrentKegID, and that pair is the sole source of the active binding.
	TapID     *int64    `gorm:"index" json:"tap_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	// Associations
	Beverage *Beverage `json:"beverage,omitempty"`
}

// RemainingVolumeML is the unclamped remaining volume. Over-pours make it
// negative; display paths clamp via PercentFull.
func (k *Keg) RemainingVolumeML() float64 {
	return k.FullVolumeML - k.ServedVolumeML - k.SpilledML
}

// PercentFull reports remaining volume as a percentage clamped to [0, 100].
func (k *Keg) PercentFull() float64 {
	if k.FullVolumeML <= 0 {
		return 0
	}
	pct := k.RemainingVolumeML() / k.FullVolumeML * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Empty reports whether the keg has no remaining volume.
func (k *Keg) Empty() bool {
	return k.RemainingVolumeML() <= 0
}

func (k *Keg) Available() bool { return k.Status == KegStatusAvailable }
func (k *Keg) OnTap() bool     { return k.Status == KegStatusOnTap }
func (k *Keg) Finished() bool  { return k.Status == KegStatusFinished }
