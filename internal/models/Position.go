package models

import (
	"time"
)

// Engine states reported by vehicle trackers.
const (
	EngineOn   = "on"
	EngineOff  = "off"
	EngineIdle = "idle"
)

// Position is one GPS fix reported for a vehicle.
type Position struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VehicleID    uint      `json:"vehicle_id" gorm:"index:idx_position_vehicle_time,priority:1"`
	Vehicle      Vehicle   `gorm:"foreignKey:VehicleID" json:"-"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Speed        float64   `json:"speed"`   // km/h
	Heading      float64   `json:"heading"` // degrees, 0-360
	Altitude     *float64  `json:"altitude,omitempty"`
	Odometer     *float64  `json:"odometer,omitempty"`
	FuelLevel    *float64  `json:"fuel_level,omitempty"` // percent
	EngineStatus string    `json:"engine_status" gorm:"default:off"`
	Timestamp    time.Time `json:"timestamp" gorm:"index:idx_position_vehicle_time,priority:2,sort:desc"`
	CreatedAt    time.Time `json:"created_at"`
}
