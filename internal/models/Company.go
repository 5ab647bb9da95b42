// internal/models/company.go
package models

import (
	"gorm.io/gorm"
)

// Company owns vehicles and the users who dispatch them.
type Company struct {
	gorm.Model
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`

	Vehicles []Vehicle `gorm:"foreignKey:CompanyID" json:"vehicles,omitempty"`
	Users    []User    `gorm:"foreignKey:CompanyID" json:"-"`
}
