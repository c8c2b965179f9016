package models

import (
	"time"
)

// Location is a candidate site shown to users for labeling
type Location struct {
	ID        int64      `json:"id" db:"id"`
	FactoryID string     `json:"factory_id" db:"factory_id"`
	DoneAt    *time.Time `json:"done_at" db:"done_at"`
	CreatedAt time.Time  `json:"-" db:"created_at"`
}

// IsDone reports whether enough agreeing answers resolved the location
func (l *Location) IsDone() bool {
	return l.DoneAt != nil
}

// LocationSummary is a location row with its answer count, used for export
type LocationSummary struct {
	Location
	AnswerCount int `json:"answer_count"`
}

// LocationFilter narrows location queries.
// A nil IDs slice means "any location"; a non-nil empty slice matches nothing.
type LocationFilter struct {
	IDs        []int64
	ExcludeIDs []int64
	OnlyOpen   bool
}
