package models

import (
	"time"
)

// TripStop attaches a Stop to a Trip at a position. Sequence is unique per
// trip; gaps are allowed. Rows are hard-deleted (no gorm.DeletedAt) so the
// unique index only ever sees live rows.
type TripStop struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TripID   uint `json:"trip_id" gorm:"not null;uniqueIndex:idx_trip_sequence,priority:1"`
	Sequence int  `json:"sequence" gorm:"not null;uniqueIndex:idx_trip_sequence,priority:2"`
	StopID   uint `json:"stop_id" gorm:"index;not null"`
	Stop     Stop `gorm:"foreignKey:StopID" json:"stop"`

	PlannedArrivalTime      time.Time  `json:"planned_arrival_time"`
	ActualArrivalDatetime   *time.Time `json:"actual_arrival_datetime,omitempty"`
	ActualDepartureDatetime *time.Time `json:"actual_departure_datetime,omitempty"`
	Notes                   string     `json:"notes"`
	IsCompleted             bool       `json:"is_completed" gorm:"default:false"`
}
