package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TripDraft      = "draft"
	TripPlanned    = "planned"
	TripInProgress = "in_progress"
	TripCompleted  = "completed"
	TripCancelled  = "cancelled"
)

// Trip is a vehicle's planned run through an ordered list of stops.
type Trip struct {
	gorm.Model
	VehicleID    uint    `json:"vehicle_id" gorm:"index"`
	Vehicle      Vehicle `gorm:"foreignKey:VehicleID" json:"-"`
	DispatcherID uint    `json:"dispatcher_id"`
	Dispatcher   User    `gorm:"foreignKey:DispatcherID" json:"-"`

	Name                string     `json:"name" binding:"required"`
	Status              string     `json:"status" gorm:"default:draft"`
	PlannedStart        time.Time  `json:"planned_start"`
	ActualStartDatetime *time.Time `json:"actual_start_datetime,omitempty"`
	ActualEndDatetime   *time.Time `json:"actual_end_datetime,omitempty"`
	Notes               string     `json:"notes"`
	DriverNotified      bool       `json:"driver_notified" gorm:"default:false"`

	TripStops []TripStop `gorm:"foreignKey:TripID;constraint:OnDelete:CASCADE;" json:"trip_stops,omitempty"`
}
