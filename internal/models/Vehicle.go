// internal/models/vehicle.go
package models

import (
	"gorm.io/gorm"
)

type Vehicle struct {
	gorm.Model
	CompanyID    uint    `json:"company_id" gorm:"index"`
	LicensePlate string  `json:"license_plate" gorm:"uniqueIndex;not null"`
	Make         string  `json:"make"`
	VehicleModel string  `json:"model" gorm:"column:model"`
	Year         int     `json:"year"`
	CapacityTons float64 `json:"capacity"`

	// The driver is not a system user; trip itineraries are sent to DriverEmail.
	DriverName  string `json:"driver_name"`
	DriverEmail string `json:"driver_email"`
	DriverPhone string `json:"driver_phone"`
	IsActive    bool   `json:"is_active" gorm:"default:true"`
}
