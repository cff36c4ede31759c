package model

import "time"

// EventKind is the closed set of derived event kinds.
type EventKind string

const (
	EventPourRecorded   EventKind = "drink_poured"
	EventSessionStarted EventKind = "session_started"
	EventSessionJoined  EventKind = "session_joined"
	EventKegTapped      EventKind = "keg_tapped"
	EventKegVolumeLow   EventKind = "keg_volume_low"
	EventKegEnded       EventKind = "keg_ended"
)

// EventKinds lists every kind the deriver can emit.
var EventKinds = []EventKind{
	EventPourRecorded,
	EventSessionStarted,
	EventSessionJoined,
	EventKegTapped,
	EventKegVolumeLow,
	EventKegEnded,
}

// Event is an immutable, append-only audit record derived from state
// transitions. Never mutated or deleted by this core, with one exception:
// reassigning a pour rewrites the drinker reference on its events.
type Event struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Kind      EventKind `gorm:"size:32;not null;index" json:"kind"`
	Time      time.Time `gorm:"not null" json:"time"`
	DrinkerID *int64    `gorm:"index" json:"drinker_id"`
	PourID    *int64    `gorm:"index" json:"pour_id"`
	KegID     *int64    `gorm:"index" json:"keg_id"`
	SessionID *int64    `gorm:"index" json:"session_id"`
	CreatedAt time.Time `json:"-"`
}
